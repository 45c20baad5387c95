// Package handler provides the HTTP handlers of the shop API.
//
// Each handler depends on a small interface (UserService, OrderService,
// PaymentService and so on) that the service and infra/auth packages
// implement, so handlers can be tested with fakes.
//
// # Responses
//
// Every endpoint except the gateway callback answers with the same envelope:
//
//	{
//	  "code": 201,
//	  "success": true,
//	  "message": "Order created",
//	  "data": {"order_id": 42, "status": "pending"}
//	}
//
// Validation failures return 400 with a field map in data:
//
//	{
//	  "code": 400,
//	  "success": false,
//	  "message": "Validation error",
//	  "data": {"phone_number": "must be a valid mobile number"}
//	}
//
// Service errors are mapped to statuses in one place (errorStatus). Errors
// that map to 500 are logged with the request id and their text is not sent
// to the client.
//
// # Gateway Callback
//
// PaymentHandler.HandleCallback answers in the format the gateway expects:
//
//	{"ResultCode": 0, "ResultDesc": "Success"}
//
// A forged or unreadable callback gets ResultCode 1 with a 4xx status. A
// store failure gets 5xx so the gateway retries. Replays of an already
// settled result are acknowledged as success.
//
// # HTTP Status Codes
//
//   - 200 OK, 201 Created
//   - 400 Bad Request: invalid input or a rule such as insufficient stock
//   - 401 Unauthorized: missing token, bad credentials, unverified email
//   - 403 Forbidden: wrong role or not the owner
//   - 404 Not Found
//   - 413 Request Entity Too Large: uploads over 20MB
//   - 429 Too Many Requests
//   - 502 Bad Gateway: the payment gateway refused or is unavailable
package handler
