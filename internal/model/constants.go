package model

import "time"

const DefaultTimeout = 10 * time.Second
const DefaultPageSize = 100
const DefaultWorkerCount = 8

const HeaderContentType = "Content-Type"
const HeaderAuthorization = "Authorization"
const HeaderIdempotencyKey = "X-Idempotency-Key"

// AuditUser is recorded as the actor of every order update.
const AuditUser = "SYSTEM-SCHEDULER"

type ContextKey string

const KeyContextLogger ContextKey = "logger"
const KeyContextActor ContextKey = "actor"

const KeyLoggerError = "error"
const KeyLoggerOrderID = "order_id"
