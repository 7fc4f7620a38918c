// Package domain defines the shared contracts of the gateway: the error
// taxonomy every layer maps into, and the request/response shapes exchanged
// between the HTTP edge and the orchestrating service.
//
// The package has no dependencies on other gateway packages; everything else
// depends on it.
package domain
