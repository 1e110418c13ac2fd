package mint

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/chaumcash/ecash/cashu"
	"github.com/chaumcash/ecash/cashu/nuts/nut06"
	"github.com/chaumcash/ecash/mint/lightning"
	"github.com/joho/godotenv"
)

type LogLevel int

const (
	Info LogLevel = iota
	Debug
	Disable
)

// Config carries everything LoadMint needs to bring a mint up: where its
// state lives, which unit(s) it issues keysets for, the payment backend
// it settles against, and its published NUT-06 info.
type Config struct {
	MintPath          string
	DBMigrationPath   string
	LogLevel          LogLevel
	Port              string
	DerivationPathIdx uint32
	InputFeePpk       uint
	Units             []cashu.CurrencyUnit
	LightningClient   lightning.Backend
	MintInfo          MintInfo
	Limits            MintLimits
}

// MintInfo is the operator-supplied half of NUT-06's GET /v1/info
// response; the protocol-derived half is filled in by the mint:
// Mint.SetMintInfo sets the supported nuts and Mint.RetrieveMintInfo the
// pubkey.
type MintInfo struct {
	Name            string
	Description     string
	LongDescription string
	Contact         []nut06.ContactInfo
	Motd            string
}

type MintMethodSettings struct {
	MinAmount uint64
	MaxAmount uint64
}

type MeltMethodSettings struct {
	MinAmount uint64
	MaxAmount uint64
}

type MintLimits struct {
	MaxBalance      uint64
	MintingSettings MintMethodSettings
	MeltingSettings MeltMethodSettings
}

// GetConfig reads a mint's configuration from the environment, in the
// manner of a twelve-factor service: no config file, every setting an
// env var, sane zero-value defaults for limits that default to
// unlimited.
func GetConfig() Config {
	// ignore error: a missing .env is normal in production, where
	// config comes from the process environment directly
	_ = godotenv.Load()

	var inputFeePpk uint = 0
	if inputFeeEnv, ok := os.LookupEnv("INPUT_FEE_PPK"); ok {
		fee, err := strconv.ParseUint(inputFeeEnv, 10, 16)
		if err != nil {
			log.Fatalf("invalid INPUT_FEE_PPK: %v", err)
		}
		inputFeePpk = uint(fee)
	}

	derivationPathIdx, err := strconv.ParseUint(os.Getenv("DERIVATION_PATH_IDX"), 10, 32)
	if err != nil {
		log.Fatalf("invalid DERIVATION_PATH_IDX: %v", err)
	}

	units := []cashu.CurrencyUnit{cashu.Sat}
	if unitsEnv, ok := os.LookupEnv("MINT_UNITS"); ok && unitsEnv != "" {
		units = units[:0]
		for _, u := range strings.Split(unitsEnv, ",") {
			units = append(units, cashu.ParseUnit(strings.TrimSpace(u)))
		}
	}

	mintLimits := MintLimits{}
	if maxBalanceEnv, ok := os.LookupEnv("MAX_BALANCE"); ok {
		maxBalance, err := strconv.ParseUint(maxBalanceEnv, 10, 64)
		if err != nil {
			log.Fatalf("invalid MAX_BALANCE: %v", err)
		}
		mintLimits.MaxBalance = maxBalance
	}

	if maxMintEnv, ok := os.LookupEnv("MINTING_MAX_AMOUNT"); ok {
		maxMint, err := strconv.ParseUint(maxMintEnv, 10, 64)
		if err != nil {
			log.Fatalf("invalid MINTING_MAX_AMOUNT: %v", err)
		}
		mintLimits.MintingSettings = MintMethodSettings{MaxAmount: maxMint}
	}

	if maxMeltEnv, ok := os.LookupEnv("MELTING_MAX_AMOUNT"); ok {
		maxMelt, err := strconv.ParseUint(maxMeltEnv, 10, 64)
		if err != nil {
			log.Fatalf("invalid MELTING_MAX_AMOUNT: %v", err)
		}
		mintLimits.MeltingSettings = MeltMethodSettings{MaxAmount: maxMelt}
	}

	level := Info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = Debug
	case "disable", "none", "off":
		level = Disable
	}

	backend, err := lightningBackendFromEnv()
	if err != nil {
		log.Fatalf("error setting up lightning backend: %v", err)
	}

	return Config{
		MintPath:          os.Getenv("MINT_DB_PATH"),
		DBMigrationPath:   "mint/storage/sqlite/migrations",
		LogLevel:          level,
		Port:              os.Getenv("MINT_PORT"),
		DerivationPathIdx: uint32(derivationPathIdx),
		InputFeePpk:       inputFeePpk,
		Units:             units,
		LightningClient:   backend,
		MintInfo: MintInfo{
			Name:            os.Getenv("MINT_NAME"),
			Description:     os.Getenv("MINT_DESCRIPTION"),
			LongDescription: os.Getenv("MINT_DESCRIPTION_LONG"),
			Motd:            os.Getenv("MINT_MOTD"),
		},
		Limits: mintLimits,
	}
}

// lightningBackendFromEnv picks the payment backend from LIGHTNING_BACKEND
// ("lnd", "cln", or "fake" for a self-contained test mint). Defaults to
// "fake" so a mint can be brought up with no external node for
// development, mirroring how regtest harnesses are normally wired.
func lightningBackendFromEnv() (lightning.Backend, error) {
	switch strings.ToLower(os.Getenv("LIGHTNING_BACKEND")) {
	case "lnd":
		return lightning.CreateLndClient()
	case "cln":
		return lightning.SetupCLNClient(lightning.CLNConfig{
			RestURL: os.Getenv("CLN_REST_URL"),
			Rune:    os.Getenv("CLN_RUNE"),
		})
	case "fake", "":
		return lightning.NewFakeBackend(), nil
	default:
		return nil, fmt.Errorf("unknown LIGHTNING_BACKEND %q", os.Getenv("LIGHTNING_BACKEND"))
	}
}
