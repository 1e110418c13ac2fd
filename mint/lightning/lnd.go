package lightning

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	LND_HOST          = "LND_REST_HOST"
	LND_CERT_PATH     = "LND_CERT_PATH"
	LND_MACAROON_PATH = "LND_MACAROON_PATH"
)

const (
	InvoiceExpiryMins = 10
	FeePercent        = 1
)

// LndClient is a Backend over LND's REST API (not grpc, to keep the
// dependency surface to net/http and a macaroon).
type LndClient struct {
	host     string
	client   *http.Client
	macaroon string // hex encoded
}

func CreateLndClient() (*LndClient, error) {
	host := os.Getenv(LND_HOST)
	if host == "" {
		return nil, errors.New(LND_HOST + " cannot be empty")
	}
	certPath := os.Getenv(LND_CERT_PATH)
	if certPath == "" {
		return nil, errors.New(LND_CERT_PATH + " cannot be empty")
	}
	macaroonPath := os.Getenv(LND_MACAROON_PATH)
	if macaroonPath == "" {
		return nil, errors.New(LND_MACAROON_PATH + " cannot be empty")
	}

	macaroonBytes, err := os.ReadFile(macaroonPath)
	if err != nil {
		return nil, fmt.Errorf("error reading macaroon: os.ReadFile %v", err)
	}
	macaroonHex := hex.EncodeToString(macaroonBytes)
	client, err := httpClient(certPath)
	if err != nil {
		return nil, fmt.Errorf("error creating lnd client: %v", err)
	}

	return &LndClient{host: host, client: client, macaroon: macaroonHex}, nil
}

func httpClient(tlsCert string) (*http.Client, error) {
	cert, err := os.ReadFile(tlsCert)
	if err != nil {
		return nil, fmt.Errorf("error reading cert: %v", err)
	}
	certPool := x509.NewCertPool()
	certPool.AppendCertsFromPEM(cert)

	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: certPool,
			},
		},
	}, nil
}

func (lnd *LndClient) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var reader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewBuffer(jsonBody)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Grpc-Metadata-macaroon", lnd.macaroon)
	return lnd.client.Do(req)
}

type addInvoiceResponse struct {
	Hash           string `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
}

func (lnd *LndClient) CreateIncoming(ctx context.Context, amountMsat uint64, memo string) (Invoice, error) {
	body := map[string]any{
		"value_msat": amountMsat,
		"memo":       memo,
		"expiry":     InvoiceExpiryMins * 60,
	}

	resp, err := lnd.do(ctx, http.MethodPost, lnd.host+"/v1/invoices", body)
	if err != nil {
		return Invoice{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return Invoice{}, fmt.Errorf("unable to get invoice from lnd")
	}

	var res addInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Invoice{}, fmt.Errorf("error parsing response from lnd: %v", err)
	}

	hashBytes, err := base64.StdEncoding.DecodeString(res.Hash)
	if err != nil {
		return Invoice{}, fmt.Errorf("error decoding hash from lnd: %v", err)
	}
	hash := hex.EncodeToString(hashBytes)

	return Invoice{
		PaymentRequest: res.PaymentRequest,
		PaymentHash:    hash,
		Amount:         amountMsat / 1000,
		Expiry:         uint64(time.Now().Add(time.Minute * InvoiceExpiryMins).Unix()),
		Status:         Unpaid,
	}, nil
}

func (lnd *LndClient) CreateOutgoingQuote(ctx context.Context, paymentRequest string) (OutgoingQuote, error) {
	url := lnd.host + "/v1/payreq/" + paymentRequest

	resp, err := lnd.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return OutgoingQuote{}, err
	}
	defer resp.Body.Close()

	var res map[string]any
	json.NewDecoder(resp.Body).Decode(&res)

	amt, ok := res["num_satoshis"]
	if !ok {
		return OutgoingQuote{}, errors.New("invoice has no amount")
	}
	satAmount, err := strconv.ParseInt(amt.(string), 10, 64)
	if err != nil {
		return OutgoingQuote{}, fmt.Errorf("invalid amount: %v", err)
	}

	return OutgoingQuote{
		Amount:     uint64(satAmount),
		FeeReserve: uint64(satAmount * FeePercent / 100),
		Expiry:     time.Now().Add(time.Minute * InvoiceExpiryMins).Unix(),
	}, nil
}

type sendPaymentResponse struct {
	PaymentError    string `json:"payment_error"`
	PaymentPreimage string `json:"payment_preimage"`
}

func (lnd *LndClient) ExecuteOutgoing(ctx context.Context, paymentRequest string, maxFeeMsat uint64) (PaymentResult, error) {
	url := lnd.host + "/v1/channels/transactions"

	body := map[string]any{
		"payment_request": paymentRequest,
		"fee_limit_msat":  maxFeeMsat,
	}

	resp, err := lnd.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return PaymentResult{Status: Unknown}, fmt.Errorf("error making payment: %v", err)
	}
	defer resp.Body.Close()

	var res sendPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return PaymentResult{Status: Unknown}, fmt.Errorf("error parsing response from lnd: %v", err)
	}

	if len(res.PaymentError) > 0 {
		return PaymentResult{Status: Failed}, fmt.Errorf("unable to make payment: %v", res.PaymentError)
	}

	return PaymentResult{Status: Paid, Preimage: res.PaymentPreimage}, nil
}

func (lnd *LndClient) CheckIncoming(ctx context.Context, paymentHash string) (PaymentResult, error) {
	hashBytes, err := hex.DecodeString(paymentHash)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("invalid hash provided")
	}

	b64EncodedHash := base64.URLEncoding.EncodeToString(hashBytes)
	url := lnd.host + "/v2/invoices/lookup?payment_hash=" + b64EncodedHash

	resp, err := lnd.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PaymentResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return PaymentResult{}, fmt.Errorf("error getting invoice status")
	}

	var res struct {
		State    string `json:"state"`
		Preimage string `json:"r_preimage"`
	}
	json.NewDecoder(resp.Body).Decode(&res)

	switch res.State {
	case "SETTLED":
		return PaymentResult{Status: Paid, Preimage: res.Preimage}, nil
	case "CANCELED":
		return PaymentResult{Status: Failed}, nil
	default:
		return PaymentResult{Status: Pending}, nil
	}
}

func (lnd *LndClient) CheckOutgoing(ctx context.Context, paymentHash string) (PaymentResult, error) {
	url := lnd.host + "/v1/payments?include_incomplete=true"

	resp, err := lnd.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PaymentResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return PaymentResult{}, fmt.Errorf("error listing payments")
	}

	var res struct {
		Payments []struct {
			PaymentHash string `json:"payment_hash"`
			Status      string `json:"status"`
			Preimage    string `json:"payment_preimage"`
		} `json:"payments"`
	}
	json.NewDecoder(resp.Body).Decode(&res)

	for _, p := range res.Payments {
		if p.PaymentHash != paymentHash {
			continue
		}
		switch p.Status {
		case "SUCCEEDED":
			return PaymentResult{Status: Paid, Preimage: p.Preimage}, nil
		case "FAILED":
			return PaymentResult{Status: Failed}, nil
		default:
			return PaymentResult{Status: Pending}, nil
		}
	}

	return PaymentResult{Status: Unknown}, nil
}

// Events is unsupported over LND's REST surface without a long-lived
// grpc stream; callers fall back to polling CheckIncoming/CheckOutgoing.
func (lnd *LndClient) Events(ctx context.Context) (<-chan Event, error) {
	return nil, errors.New("lnd: event subscription requires the grpc API, not implemented over REST")
}
