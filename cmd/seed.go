package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/service/user"
)

const (
	devEmail    = "demo@pocketledger.dev"
	devPassword = "demo-password"
	devCurrency = "GBP"
)

// devSeed makes sure the demo user exists with a main account and prints a
// fresh token. Running it against a persistent store reuses the same user.
func devSeed(ctx context.Context, svc services, backendName string, logger *slog.Logger) error {
	_, err := svc.users.Register(ctx, user.Registration{
		Email:     devEmail,
		FirstName: "Demo",
		LastName:  "User",
		Password:  devPassword,
	})
	if err != nil && !errors.Is(err, errs.ErrConflict) {
		return err
	}
	tok, err := svc.users.Login(ctx, devEmail, devPassword)
	if err != nil {
		return err
	}
	acc, err := svc.accounts.Create(ctx, tok.UserID, devCurrency)
	if errors.Is(err, errs.ErrConflict) {
		accs, lerr := svc.accounts.List(ctx, tok.UserID)
		if lerr != nil {
			return lerr
		}
		for _, a := range accs {
			if a.Role == ledger.MainRole() && a.Currency == devCurrency {
				acc = a
			}
		}
	} else if err != nil {
		return err
	}

	logger.Info("DEV seed ("+backendName+")",
		"user_id", tok.UserID.String(),
		"account_id", acc.ID.String(),
		"token_expire", tok.Expire,
	)
	printDevSeedBanner(tok, acc)
	return nil
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste.
func printDevSeedBanner(tok ledger.Token, acc ledger.Account) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("email:      %s\n", devEmail)
	fmt.Printf("password:   %s\n", devPassword)
	fmt.Printf("user_id:    %s\n", tok.UserID)
	fmt.Printf("account_id: %s (%s)\n", acc.ID, acc.Currency)
	fmt.Printf("token:      %s\n", tok.Value)
	fmt.Println("==================================================")
}
