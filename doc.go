// Package dukapi is the backend of a small online shop: a catalog, customer
// accounts, checkout with stock control and M-Pesa STK push payments.
//
// # Overview
//
// The binary in cmd/ serves a JSON REST API under /v1 plus the gateway
// callback at /callback/mpesa. PostgreSQL holds every record. Redis is
// optional and, when present, backs rate limiting, OAuth token sharing and
// callback deduplication.
//
// # Architecture
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Storefront    │◄──►│     dukapi      │◄──►│     M-Pesa      │
//	│   and admin UI  │    │    (REST API)   │    │    (Daraja)     │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// Packages:
//
//   - handler: HTTP handlers, one per resource
//   - router and router/v1: route table and role guards
//   - service: catalog, orders, payments and engagement logic over PostgreSQL
//   - provider and provider/mpesa: the push-payment gateway abstraction
//   - infra/...: config, database, cache, auth, mail, logging and metrics
//
// # Roles
//
// Accounts are customer, admin or superadmin. Customers register themselves
// and must verify their email before logging in. Admins manage the catalog,
// banners and orders. Superadmins also manage users and own every product.
//
// # Payments
//
// A customer starts a payment with POST /v1/payments/transact. The push is
// stored as PROCESSING and settled by whichever arrives first of the signed
// callback, a customer status query or the background reconciler. A
// transaction is settled at most once:
//
//	PENDING → PROCESSING → ACCEPTED
//	                     → REJECTED
//
// An ACCEPTED transaction can pay for one order, either at checkout or by
// naming the order when the push is started.
//
// # Configuration
//
// Settings come from the environment, optionally loaded from a .env file:
//
//	APP_PORT=8000
//	DB_HOST=localhost
//	DB_NAME=dukapi
//	JWT_SECRET=change-me
//	REDIS_URL=redis://localhost:6379/0
//	MPESA_LNMO_CONSUMER_KEY=...
//	MPESA_LNMO_CONSUMER_SECRET=...
//	MPESA_LNMO_SHORT_CODE=174379
//	MPESA_CALLBACK_URL=https://shop.example.com/callback/mpesa
//	MPESA_CALLBACK_SECRET=...
//
// See infra/config for the full list.
package dukapi
