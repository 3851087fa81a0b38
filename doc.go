// Package depcache implements an in-process cache with single-flight
// computation and transitive, dependency-driven invalidation.
//
// Components:
//   - store.Store: expiring entries plus a reverse dependency index. Removing,
//     expiring, evicting or overwriting a key removes everything built from it.
//   - keylock.Registry: per-key locks so at most one producer runs per key.
//   - scope: the in-flight build carried by context.Context. Cache reads made
//     with that context become dependencies of the key being built.
//   - provider.Provider: where values live (unbounded map by default, or a
//     bounded ristretto cache).
//
// Dependencies are captured, never declared by hand:
//
//	price, _ := depcache.GetOrCompute(ctx, c, "price:42", func(ctx context.Context) (float64, error) {
//	    p, err := depcache.GetOrCompute(ctx, c, "product:42", loadProduct, time.Hour)
//	    if err != nil {
//	        return 0, err
//	    }
//	    return p.Price * taxRate(ctx), nil
//	}, 0)
//
//	c.Remove("product:42") // "price:42" is gone as well
//
// The ctx passed to a producer must be used for nested cache calls; reads made
// with an unrelated context are not recorded.
package depcache
