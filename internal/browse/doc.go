// Package browse implements the pagination and filter state of the item
// browser.
//
// The user's page request is an Intent: an opaque cursor plus search and
// group filters. A Coordinator turns every intent change or refresh into a
// fetch and publishes the resulting Page as a Snapshot. Fetches are ordered by
// epoch: each trigger starts a new epoch and cancels the previous fetch's
// context, and a result is applied only when its epoch is still current, so
// the last trigger always wins whatever order the responses arrive in.
//
// A Codec mirrors the intent to a location string ("?cursor=..&search=..")
// that can be shared and restored. The Controller combines both with the
// mutation recovery rules in AfterDelete, AfterCreate and AfterUpdate.
//
// # Usage Example
//
//	ctrl := browse.NewController(ctx, client,
//	    browse.WithCodec(browse.NewCodec(items.DefaultGroups...)),
//	    browse.WithStore(location.NewFileStore(stateDir)),
//	)
//	defer ctrl.Close()
//
//	ctrl.Start("?search=rock")
//	snap, err := ctrl.Wait(ctx)
//	if err == nil && ctrl.GoNext() {
//	    snap, err = ctrl.Wait(ctx)
//	}
package browse
