// Package authapi serves the account endpoints under /api/auth: signup,
// login, logout, refresh, logout-all and the profile of the caller.
//
// Access credentials are returned in the JSON body. The refresh credential
// only ever travels in the HttpOnly refreshToken cookie.
package authapi
