package chart

// DefaultChart returns the built-in chart of accounts used when the
// database has no chart rows. Codes follow a three-digit convention with
// "000" reserved for uncategorized.
func DefaultChart() map[string]Entry {
	entries := []Entry{
		{Code: "000", AccountType: "system", Account: "Uncategorized", Description: "No classification available"},

		{Code: "100", AccountType: "income", Account: "Income"},
		{Code: "110", AccountType: "income", ParentAccount: "100", Account: "Salary & Wages", Description: "Employment income, payroll deposits"},
		{Code: "120", AccountType: "income", ParentAccount: "100", Account: "Interest & Dividends", Description: "Bank interest, investment dividends"},
		{Code: "130", AccountType: "income", ParentAccount: "100", Account: "Refunds & Reimbursements"},

		{Code: "200", AccountType: "expense", Account: "Living Expenses"},
		{Code: "210", AccountType: "expense", ParentAccount: "200", Account: "Rent & Mortgage", Description: "Housing payments"},
		{Code: "220", AccountType: "expense", ParentAccount: "200", Account: "Utilities", Description: "Electricity, water, gas, internet"},
		{Code: "230", AccountType: "expense", ParentAccount: "200", Account: "Groceries", Description: "Supermarkets and grocery stores"},
		{Code: "240", AccountType: "expense", ParentAccount: "200", Account: "Transportation", Description: "Fuel, public transit, rideshare, parking"},
		{Code: "250", AccountType: "expense", ParentAccount: "200", Account: "Insurance", Description: "Health, auto, home insurance premiums"},
		{Code: "260", AccountType: "expense", ParentAccount: "200", Account: "Healthcare", Description: "Medical, dental, pharmacy"},
		{Code: "270", AccountType: "expense", Account: "Discretionary"},
		{Code: "272", AccountType: "expense", ParentAccount: "270", Account: "Restaurants & Dining", Description: "Restaurants, cafes, coffee shops, takeout"},
		{Code: "274", AccountType: "expense", ParentAccount: "270", Account: "Entertainment", Description: "Streaming, cinema, events, subscriptions"},
		{Code: "276", AccountType: "expense", ParentAccount: "270", Account: "Shopping", Description: "Retail, online shopping, clothing"},
		{Code: "278", AccountType: "expense", ParentAccount: "270", Account: "Travel", Description: "Flights, hotels, vacation spending"},

		{Code: "300", AccountType: "asset", Account: "Assets"},
		{Code: "310", AccountType: "asset", ParentAccount: "300", Account: "Savings Transfers", Description: "Transfers to savings or investment accounts"},

		{Code: "400", AccountType: "liability", Account: "Liabilities"},
		{Code: "410", AccountType: "liability", ParentAccount: "400", Account: "Credit Card Payments"},
		{Code: "420", AccountType: "liability", ParentAccount: "400", Account: "Loan Payments", Description: "Student loans, personal loans"},
	}

	byCode := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byCode[e.Code] = e
	}
	return byCode
}
