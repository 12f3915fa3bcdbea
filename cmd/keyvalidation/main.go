package main

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"go.uber.org/zap"

	"github.com/user/rsalab/internal/bigint"
	"github.com/user/rsalab/internal/config"
	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/internal/keycodec"
	"github.com/user/rsalab/internal/keyerr"
	"github.com/user/rsalab/internal/rsaparams"
)

var publicInvariants = []string{
	rsaparams.InvPositive,
	rsaparams.InvExponent,
	rsaparams.InvOddE,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <keyfile.pem>\n", os.Args[0])
		os.Exit(1)
	}

	keyFile := os.Args[1]

	pemData, err := os.ReadFile(keyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading key file: %v\n", err)
		os.Exit(1)
	}

	raw, err := keycodec.PEMCodec{}.Decode(pemData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Key file: %s\n", keyFile)
	fmt.Printf("Encoding: %s\n", raw.Encoding)
	fmt.Printf("Key size: %d bits\n", raw.N.BitLen())
	fmt.Printf("Public exponent: %s\n", raw.E)

	eng := engine.New(config.Default(), zap.NewNop())
	analysis, err := eng.AnalyzeRSAKey(context.Background(), string(pemData))

	checks := publicInvariants
	if raw.Private {
		checks = rsaparams.PrivateInvariants()
	}

	fmt.Println("\nValidating mathematical properties...")
	failed := report(checks, err)
	if failed {
		fmt.Printf("\n%v\n", err)
		os.Exit(1)
	}

	if analysis.Private != nil {
		fmt.Println("\nChecking exponent round trip...")
		if roundTrip(analysis.Private) {
			fmt.Println("✓ (m^e)^d mod n == m")
		} else {
			fmt.Println("✗ (m^e)^d mod n != m")
			os.Exit(1)
		}
	}

	fmt.Printf("\nSecurity tier: %s\n", analysis.Security.Tier)
	for _, v := range analysis.Security.Vulnerabilities {
		fmt.Printf("  ! %s\n", v)
	}

	fmt.Println("\nKey validation complete!")
}

// report prints one line per invariant. Checks run in order and stop at the
// first failure, so later invariants are shown as not checked.
func report(checks []string, err error) bool {
	broken := keyerr.InvariantOf(err)
	if err != nil && broken == "" {
		fmt.Printf("✗ %v\n", err)
		return true
	}

	reached := false
	for _, inv := range checks {
		switch {
		case reached:
			fmt.Printf("- %s (not checked)\n", inv)
		case inv == broken:
			fmt.Printf("✗ %s\n", inv)
			reached = true
		default:
			fmt.Printf("✓ %s\n", inv)
		}
	}
	return err != nil
}

func roundTrip(p *rsaparams.PrivateParams) bool {
	m := big.NewInt(0x7e57)
	m.Mod(m, p.N)
	c := bigint.ModPow(m, p.E, p.N)
	return bigint.ModPow(c, p.D, p.N).Cmp(m) == 0
}
