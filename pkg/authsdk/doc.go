/*
Package authsdk is a client SDK for ForgeRock Access Management intelligent
trees.

# Overview

An AM tree is a server driven login journey. The client starts a tree,
receives a node holding callbacks (username prompt, password prompt, one
time password, choice, ...), answers them and submits the node. The server
answers with the next node until the tree completes with an SSO token.

The package is organized around three types:

  - SDKClient: configuration, transport and the collaborators below
  - AuthService: one walk through one tree
  - Node: one step of a walk, with the callbacks to answer

	client, err := authsdk.NewSDKClient(authsdk.Config{
		URL:         "https://openam.example.com/openam",
		Realm:       "alpha",
		ClientID:    "cli",
		RedirectURI: "https://localhost/callback",
		Scope:       "openid profile",
	})

	step, err := client.Login(ctx)
	for err == nil && !step.Done() {
		for _, cb := range step.Node.Callbacks() {
			// answer cb with cb.SetValue
		}
		step, err = step.Node.Next(ctx)
	}
	user := step.User()

# Interceptors

When a tree completes its SSO token is threaded through a chain of
interceptors (see package chain). Each interceptor accepts a payload kind
and may transform it: the SSO token is persisted, exchanged for an OAuth2
access token, the access token is persisted and finally wrapped in a
Session or User. Interceptors that do not accept the current payload are
skipped, so one chain can serve several kinds.

Callers add their own interceptors through AuthServiceConfig.Interceptors.

# Sessions

SessionManager combines the SingleSignOnManager, which holds the SSO
token, and the TokenManager, which holds the access token. Both persist
through a DataRepository; the default is process memory and
internal/store provides an encrypted sqlite one.

SessionManager.AccessToken returns the stored access token while it
belongs to the stored SSO session, refreshing it when it is within the
configured threshold of expiry. When the access token is gone or rejected
it is exchanged again from the SSO token. ErrAuthenticationRequired means
neither token is usable and a tree has to be walked.

# Registry

Trees in flight live in a Registry owned by the SDKClient, an LRU of
DefaultRegistrySize entries. A tree leaves the registry when it completes
or the server expires it. Submitting a node of a tree that left the
registry fails with ErrAuthServiceNotFound.

# Error Handling

Responses from the authenticate endpoint map to typed errors:

  - AuthenticationTimeoutError: the server expired the tree (code 110)
  - SuspendedAuthSessionError: a suspended tree could not be resumed
  - AuthenticationError: any other 401; the node may be submitted again
  - APIError: any other non-2xx response

	step, err := node.Next(ctx)
	var timeout *authsdk.AuthenticationTimeoutError
	if errors.As(err, &timeout) {
		// start over
	}

# Thread Safety

SDKClient, the managers and the Registry are safe for concurrent use. A
tree is a single threaded walk: submit one node of a tree at a time.
*/
package authsdk
