package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	clnInvoiceExpirySecs = 600
	clnFeePercent        = FeePercent
)

type CLNConfig struct {
	RestURL string
	Rune    string
}

// CLNClient is a Backend over Core Lightning's REST plugin.
type CLNClient struct {
	config CLNConfig
	client *http.Client

	events chan Event
}

type clnErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func SetupCLNClient(config CLNConfig) (*CLNClient, error) {
	return &CLNClient{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		events: make(chan Event, 64),
	}, nil
}

func (cln *CLNClient) post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	var jsonData []byte
	if body != nil {
		var err error
		jsonData, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Rune", cln.config.Rune)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	return cln.client.Do(req)
}

func (cln *CLNClient) ConnectionStatus(ctx context.Context) error {
	resp, err := cln.post(ctx, cln.config.RestURL+"/v1/getinfo", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("could not get connection status from CLN: %s", bodyBytes)
	}

	return nil
}

func (cln *CLNClient) CreateIncoming(ctx context.Context, amountMsat uint64, memo string) (Invoice, error) {
	r := rand.New(rand.NewPCG(uint64(time.Now().UnixMicro()), uint64(time.Now().UnixMilli())))

	body := map[string]interface{}{
		"amount_msat": amountMsat,
		"label":       fmt.Sprintf("%d-%d", time.Now().UnixNano(), r.Int()),
		"description": memo,
		"expiry":      clnInvoiceExpirySecs,
	}

	resp, err := cln.post(ctx, cln.config.RestURL+"/v1/invoice", body)
	if err != nil {
		return Invoice{}, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Invoice{}, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errRes clnErrorResponse
		if err := json.Unmarshal(bodyBytes, &errRes); err != nil {
			return Invoice{}, err
		}
		return Invoice{}, errors.New(errRes.Message)
	}

	var response struct {
		Bolt11      string `json:"bolt11"`
		PaymentHash string `json:"payment_hash"`
	}
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return Invoice{}, err
	}

	return Invoice{
		PaymentRequest: response.Bolt11,
		PaymentHash:    response.PaymentHash,
		Amount:         amountMsat / 1000,
		Expiry:         clnInvoiceExpirySecs,
		Status:         Unpaid,
	}, nil
}

func (cln *CLNClient) CreateOutgoingQuote(ctx context.Context, paymentRequest string) (OutgoingQuote, error) {
	body := map[string]string{"bolt11": paymentRequest}

	resp, err := cln.post(ctx, cln.config.RestURL+"/v1/decodepay", body)
	if err != nil {
		return OutgoingQuote{}, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return OutgoingQuote{}, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errRes clnErrorResponse
		if err := json.Unmarshal(bodyBytes, &errRes); err != nil {
			return OutgoingQuote{}, err
		}
		return OutgoingQuote{}, errors.New(errRes.Message)
	}

	var response struct {
		AmountMsat uint64 `json:"amount_msat"`
		Expiry     int64  `json:"expiry"`
	}
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return OutgoingQuote{}, err
	}

	amount := response.AmountMsat / 1000
	return OutgoingQuote{
		Amount:     amount,
		FeeReserve: cln.FeeReserve(amount),
		Expiry:     time.Now().Add(time.Duration(response.Expiry) * time.Second).Unix(),
	}, nil
}

func (cln *CLNClient) ExecuteOutgoing(ctx context.Context, paymentRequest string, maxFeeMsat uint64) (PaymentResult, error) {
	body := map[string]interface{}{
		"bolt11": paymentRequest,
		"maxfee": maxFeeMsat,
	}

	resp, err := cln.post(ctx, cln.config.RestURL+"/v1/pay", body)
	if err != nil {
		return PaymentResult{Status: Unknown}, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return PaymentResult{Status: Unknown}, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errRes clnErrorResponse
		if err := json.Unmarshal(bodyBytes, &errRes); err != nil {
			return PaymentResult{Status: Unknown}, err
		}
		return PaymentResult{Status: Failed}, errors.New(errRes.Message)
	}

	var response struct {
		PaymentHash string `json:"payment_hash"`
		Preimage    string `json:"payment_preimage"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return PaymentResult{Status: Unknown}, err
	}

	result := PaymentResult{Preimage: response.Preimage, Status: clnStatus(response.Status)}
	cln.emit(response.PaymentHash, result)
	return result, nil
}

func (cln *CLNClient) CheckIncoming(ctx context.Context, paymentHash string) (PaymentResult, error) {
	body := map[string]string{"payment_hash": paymentHash}

	resp, err := cln.post(ctx, cln.config.RestURL+"/v1/listinvoices", body)
	if err != nil {
		return PaymentResult{}, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return PaymentResult{}, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errRes clnErrorResponse
		if err := json.Unmarshal(bodyBytes, &errRes); err != nil {
			return PaymentResult{}, err
		}
		return PaymentResult{}, errors.New(errRes.Message)
	}

	var response struct {
		Invoices []struct {
			Preimage string `json:"payment_preimage"`
			Status   string `json:"status"`
		} `json:"invoices"`
	}
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return PaymentResult{}, err
	}
	if len(response.Invoices) == 0 {
		return PaymentResult{}, fmt.Errorf("invoice not found")
	}

	invoice := response.Invoices[0]
	status := Unpaid
	if invoice.Status == "paid" {
		status = Paid
	} else if invoice.Status == "expired" {
		status = Failed
	}

	return PaymentResult{Status: status, Preimage: invoice.Preimage}, nil
}

var errOutgoingPaymentNotFound = errors.New("lightning: outgoing payment not found")

func (cln *CLNClient) CheckOutgoing(ctx context.Context, paymentHash string) (PaymentResult, error) {
	body := map[string]string{"payment_hash": paymentHash}
	resp, err := cln.post(ctx, cln.config.RestURL+"/v1/listpays", body)
	if err != nil {
		return PaymentResult{}, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return PaymentResult{}, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errRes clnErrorResponse
		if err := json.Unmarshal(bodyBytes, &errRes); err != nil {
			return PaymentResult{}, err
		}
		return PaymentResult{}, errors.New(errRes.Message)
	}

	var listPaysResponse struct {
		Pays []struct {
			Status          string `json:"status"`
			PaymentPreimage string `json:"preimage,omitempty"`
		} `json:"pays"`
	}
	if err := json.Unmarshal(bodyBytes, &listPaysResponse); err != nil {
		return PaymentResult{}, err
	}
	if len(listPaysResponse.Pays) == 0 {
		return PaymentResult{}, errOutgoingPaymentNotFound
	}

	payment := listPaysResponse.Pays[0]
	return PaymentResult{Status: clnStatus(payment.Status), Preimage: payment.PaymentPreimage}, nil
}

func clnStatus(s string) Status {
	switch s {
	case "complete":
		return Paid
	case "failed":
		return Failed
	case "pending":
		return Pending
	default:
		return Unknown
	}
}

func (cln *CLNClient) FeeReserve(amount uint64) uint64 {
	return uint64(math.Ceil(float64(amount) * clnFeePercent / 100))
}

func (cln *CLNClient) emit(paymentHash string, result PaymentResult) {
	select {
	case cln.events <- Event{PaymentHash: paymentHash, Result: result}:
	default:
	}
}

// Events returns the channel that ExecuteOutgoing results are pushed to.
// CLN's waitinvoice/waitsendpay long-poll endpoints would let this also
// cover backend-initiated settlement, but this client only needs to
// surface outcomes of payments it itself initiated.
func (cln *CLNClient) Events(ctx context.Context) (<-chan Event, error) {
	return cln.events, nil
}
