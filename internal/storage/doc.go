// Package storage persists the session's authentication material.
//
// A CredentialStore sits on top of a Backend (memory, file, sqlite or redis)
// and maps two kinds of data onto flat keys:
//
//	creds            the long-lived Credentials (JSON)
//	<category>-<id>  opaque key records created by the transport
//
// Every write is a single atomic backend batch, and every failure is
// returned as an *Error matching ErrStorage.
package storage
