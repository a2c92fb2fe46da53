// Package httputil provides HTTP helpers shared by every handler package.
//
// Responses are JSON. Errors carry the apierrors kind so clients can render a
// specific message:
//
//	{"error": "license_exhausted", "message": "no remaining units on license 12"}
//
// WriteError maps any error to its status with apierrors.HTTPStatus and logs
// unexpected (internal) failures with the request-scoped logger before
// replying with a generic message.
package httputil
