// Package provider abstracts push-payment gateways behind a single interface.
//
// # Core Concepts
//
//   - PaymentProvider: implemented by each gateway (see provider/mpesa)
//   - ProviderRegistry: gateways register a factory from an init function
//   - GatewayService: wraps an initialized provider and records every call
//     through a GatewayLogger
//   - CallbackSigner: signs per-payment callback URLs so inbound
//     notifications can be authenticated
//
// # Basic Usage
//
//	import _ "github.com/mstgnz/dukapi/provider/mpesa"
//
//	p, err := provider.Build("mpesa", map[string]string{
//	    "consumerKey":    "key",
//	    "consumerSecret": "secret",
//	    "environment":    "sandbox",
//	    "passKey":        "passkey",
//	    "shortCode":      "174379",
//	})
//	svc := provider.NewGatewayService("mpesa", p, provider.NewDBGatewayLogger(db, nil))
//	resp, err := svc.InitiatePush(ctx, provider.PushRequest{...})
//
// Results arrive later through ParseCallback or can be polled with QueryPush.
package provider
