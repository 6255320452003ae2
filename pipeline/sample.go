package pipeline

import "phishguard/ml"

// SampleDataset is the built-in seed set used when no CSV is available.
func SampleDataset() ml.Dataset {
	return ml.Dataset{
		{URL: "https://www.google.com", Label: 0},
		{URL: "https://secure-login.paypal.com", Label: 1},
		{URL: "https://accounts.google.com", Label: 0},
		{URL: "http://192.168.0.1/login", Label: 1},
		{URL: "http://update-bank-info.com", Label: 1},
		{URL: "https://github.com", Label: 0},
		{URL: "https://verify-facebook.com", Label: 1},
		{URL: "https://microsoft.com", Label: 0},
	}
}
