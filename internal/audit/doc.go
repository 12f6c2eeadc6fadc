// Package audit keeps the bounded, newest-first history of admin updates
// shown in the admin console.
package audit
