package consolidate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/charmbracelet/huh"

	"cashkit/internal/forms"
	"cashkit/internal/wallet"
)

// RunWizard collects consolidation options interactively. The source is
// picked from the keystore addresses, the remaining answers start from
// the configured defaults. A cancelled form returns forms.ErrCancelled.
func RunWizard(addresses []string, defaults Options, params *chaincfg.Params) (Options, error) {
	if len(addresses) == 0 {
		return Options{}, errors.New("no addresses in the keystore")
	}

	opts := defaults
	opts.SourceAddress = addresses[0]

	if err := runCoinFilterForm(&opts, addresses, params); err != nil {
		return Options{}, err
	}
	if opts.IncludeTokens {
		if err := confirmTokenBurn(&opts); err != nil {
			return Options{}, err
		}
	}
	if err := runOutputForm(&opts, params); err != nil {
		return Options{}, err
	}
	if err := opts.Validate(params); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func runCoinFilterForm(opts *Options, addresses []string, params *chaincfg.Params) error {
	options := make([]huh.Option[string], 0, len(addresses))
	for _, addr := range addresses {
		options = append(options, huh.NewOption(addr, addr))
	}

	var minValue, maxValue string
	amountOrEmpty := func(s string) error {
		if s == "" {
			return nil
		}
		_, err := wallet.ParseAmount(s)
		return err
	}

	form := forms.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Source address").
				Description("Coins of this address will be consolidated").
				Options(options...).
				Value(&opts.SourceAddress),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Include coinbase coins").
				Value(&opts.IncludeCoinbase),
			huh.NewConfirm().
				Title("Include non-coinbase coins").
				Value(&opts.IncludeNonCoinbase),
			huh.NewConfirm().
				Title("Include frozen coins").
				Value(&opts.IncludeFrozen),
			huh.NewConfirm().
				Title("Include coins with tokens").
				Value(&opts.IncludeTokens),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Minimum coin value").
				Description("Coins below this value are left alone (empty for no minimum)").
				Placeholder("0.00000546").
				Value(&minValue).
				Validate(amountOrEmpty),
			huh.NewInput().
				Title("Maximum coin value").
				Description("Coins above this value are left alone (empty for no maximum)").
				Value(&maxValue).
				Validate(amountOrEmpty),
		),
	)
	if err := form.Run(); err != nil {
		return forms.ErrCancelled
	}

	opts.MinValue = 0
	if minValue != "" {
		amount, err := wallet.ParseAmount(minValue)
		if err != nil {
			return err
		}
		opts.MinValue = amount
	}
	opts.MaxValue = 0
	if maxValue != "" {
		amount, err := wallet.ParseAmount(maxValue)
		if err != nil {
			return err
		}
		opts.MaxValue = amount
	}
	return nil
}

func confirmTokenBurn(opts *Options) error {
	confirmed := false
	form := forms.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Tokens may be lost").
				Description("Transferring tokens is not supported. Consolidating coins that carry tokens will burn them.").
				Value(&confirmed).
				Affirmative("Burn them").
				Negative("Leave them out"),
		),
	)
	if err := form.Run(); err != nil {
		return forms.ErrCancelled
	}
	if !confirmed {
		opts.IncludeTokens = false
	}
	return nil
}

func runOutputForm(opts *Options, params *chaincfg.Params) error {
	sameAddress := opts.Destination == ""
	destination := opts.Destination
	maxSize := strconv.Itoa(opts.MaxTxSizeBytes)

	destForm := forms.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Destination").
				Description("Send the consolidated value back to the source address?").
				Value(&sameAddress).
				Affirmative("Same address").
				Negative("Another address"),
		),
	)
	if err := destForm.Run(); err != nil {
		return forms.ErrCancelled
	}

	if !sameAddress {
		addrForm := forms.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Destination address").
					Placeholder("enter a valid destination address").
					Value(&destination).
					Validate(func(s string) error {
						_, err := wallet.DecodeAddress(s, params)
						return err
					}),
			),
		)
		if err := addrForm.Run(); err != nil {
			return forms.ErrCancelled
		}
		opts.Destination = destination
	} else {
		opts.Destination = ""
	}

	sizeForm := forms.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Maximum transaction size (bytes)").
				Description(fmt.Sprintf("Between %d and %d", MinTxSize, MaxTxSize)).
				Value(&maxSize).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil {
						return errors.New("not a number")
					}
					if n < MinTxSize || n > MaxTxSize {
						return fmt.Errorf("must be between %d and %d", MinTxSize, MaxTxSize)
					}
					return nil
				}),
		),
	)
	if err := sizeForm.Run(); err != nil {
		return forms.ErrCancelled
	}
	size, err := strconv.Atoi(maxSize)
	if err != nil {
		return err
	}
	opts.MaxTxSizeBytes = size
	return nil
}
