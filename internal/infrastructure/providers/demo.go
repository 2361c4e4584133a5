package providers

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/domain/provider"
)

// Demo mode serves deterministic fixture data so the full link→sync flow
// can be exercised without live provider credentials.

func demoLinkInitiation(kind provider.LinkKind, providerID string) *provider.LinkInitiation {
	init := &provider.LinkInitiation{Kind: kind}
	switch kind {
	case provider.LinkKindRedirectAuth:
		init.AuthURL = fmt.Sprintf("https://demo.local/%s/authorize?state=demo", providerID)
	default:
		init.WidgetToken = "demo-" + providerID + "-link-token"
	}
	return init
}

func demoExchange(providerID, userID string) *provider.ExchangeResult {
	return &provider.ExchangeResult{
		AccessToken:    fmt.Sprintf("demo-%s-access-%s", providerID, userID),
		ExternalItemID: fmt.Sprintf("demo-%s-item-%s", providerID, userID),
	}
}

func demoAccounts(currency string) []provider.RawAccount {
	return []provider.RawAccount{
		{
			ProviderAccountID: "demo-checking",
			Name:              "Demo Checking",
			Type:              "depository",
			Subtype:           "checking",
			Mask:              "0001",
			CurrentBalance:    decimal.RequireFromString("2543.21"),
			AvailableBalance:  decimal.RequireFromString("2443.21"),
			Currency:          currency,
		},
		{
			ProviderAccountID: "demo-credit",
			Name:              "Demo Credit Card",
			Type:              "credit",
			Subtype:           "credit card",
			Mask:              "7731",
			CurrentBalance:    decimal.RequireFromString("-412.09"),
			AvailableBalance:  decimal.RequireFromString("4587.91"),
			Currency:          currency,
		},
	}
}

// demoTransactions emits a stable set of transactions inside the window,
// signed according to the provider's own convention.
func demoTransactions(providerAccountID, currency string, start, end time.Time, positiveIsExpense bool) []provider.RawTransaction {
	sign := func(expense bool, amount string) decimal.Decimal {
		d := decimal.RequireFromString(amount)
		if expense == positiveIsExpense {
			return d
		}
		return d.Neg()
	}

	day := end.AddDate(0, 0, -1)
	if day.Before(start) {
		day = start
	}
	payday := end.AddDate(0, 0, -3)
	if payday.Before(start) {
		payday = start
	}

	return []provider.RawTransaction{
		{
			ProviderTransactionID: "demo-" + providerAccountID + "-1",
			ProviderAccountID:     providerAccountID,
			Amount:                sign(true, "4.50"),
			Description:           "Demo Coffee Roasters",
			Merchant:              "Demo Coffee Roasters",
			Date:                  day,
			Category:              "food_and_drink",
			Currency:              currency,
		},
		{
			ProviderTransactionID: "demo-" + providerAccountID + "-2",
			ProviderAccountID:     providerAccountID,
			Amount:                sign(true, "63.10"),
			Description:           "Demo Grocery Store",
			Merchant:              "Demo Grocery Store",
			Date:                  day,
			Category:              "groceries",
			Pending:               true,
			Currency:              currency,
		},
		{
			ProviderTransactionID: "demo-" + providerAccountID + "-3",
			ProviderAccountID:     providerAccountID,
			Amount:                sign(false, "1850.00"),
			Description:           "Demo Payroll",
			Date:                  payday,
			Category:              "income",
			Currency:              currency,
		},
	}
}
