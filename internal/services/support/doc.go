// Package support implements the real-time presence and routing layer that
// pairs storefront customers with the support admin.
//
// Identity and role are facts supplied by the storefront's auth collaborator;
// this layer only tracks which connection currently speaks for an identity,
// propagates online/offline transitions to the admin, and routes messages
// between customers and the active admin.
package support
