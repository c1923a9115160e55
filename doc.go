// Package appcrafted provides a client for the Appcrafted remote asset service.
//
// Assets live in containers. The first request for any asset of a container
// downloads the whole container, decodes every asset's typed attributes, and
// caches the result; later requests for assets of that container are served
// from memory without touching the network.
//
// Basic usage:
//
//	client, err := appcrafted.New(
//	    appcrafted.WithCredentials("access-key", "secret-key"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	asset, err := client.Get(ctx, "container-id", "asset-id")
//	if err != nil {
//	    return err
//	}
//	color, _ := asset.Attribute("color")
//
// Requests can also be issued without blocking. GetAsset returns a Request
// that resolves once the asset is available, and every resolution is
// broadcast to the listeners registered with Subscribe:
//
//	unsubscribe := client.Subscribe(func(e appcrafted.Event) {
//	    if e.Err == nil {
//	        render(e.Asset)
//	    }
//	})
//	defer unsubscribe()
//
//	req := client.GetAsset(ctx, "container-id", "asset-id")
//	<-req.Done()
//
// Concurrent requests for assets of the same container share a single
// download. Reset drops every cached container and reloads the requested one.
package appcrafted
