// Package httpapi maps authgate Engine operations onto HTTP.
//
// Every response under /api/auth uses the envelope
// {"success": bool, "message": string, "data": any}. Engine errors are
// mapped to 400, 401, 422, 429 or 500; internal error text is logged and
// never written to the client.
package httpapi
