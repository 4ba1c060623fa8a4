// Package cbcclient builds a ready-to-use *platform.API.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/cbc-client/pkg/cbc"
//	  "github.com/fivetwenty-io/cbc-client/pkg/cbcclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  // Everything from ~/.carbonblack/credentials.cbc, profile "default".
//	  api, err := cbcclient.New(ctx, &cbc.Config{})
//	  if err != nil { log.Fatal(err) }
//	  defer api.Close()
//
//	  // Or explicit values:
//	  api, err = cbcclient.NewWithToken(ctx, "https://defense.example.com", "SECRET/ID", "ORGKEY")
//
//	  devices, err := api.Devices().Where("os:WINDOWS").SetRows(10).Execute(ctx)
//	  if err != nil { log.Fatal(err) }
//	  _ = devices
//	}
//
// # Credential resolution
//
// Fields set on cbc.Config win. Empty fields are filled from CBC_URL,
// CBC_TOKEN, CBC_ORG_KEY and CBC_SSL_VERIFY, then from the selected profile
// of the credentials file. A required field still missing fails New with a
// *cbc.CredentialError naming the field.
//
// # TLS
//
// Certificates are verified unless the resolved ssl_verify is explicitly false.
package cbcclient
