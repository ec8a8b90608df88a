// Package repository defines the storage contracts of the auth service.
//
// Implementations live in internal/store/{memory,pg,redis}:
//
//	┌─────────────────────────────────────────────┐
//	│     services/auth, directory                │
//	└─────────────────────────────────────────────┘
//	                     │
//	                     ▼
//	┌─────────────────────────────────────────────┐
//	│  repository (UserRepository,                │
//	│              RefreshTokenStore)             │
//	└─────────────────────────────────────────────┘
//	                     │
//	        ┌────────────┼────────────┐
//	        ▼            ▼            ▼
//	   store/memory   store/pg    store/redis
//
// Conventions: context first, domain errors from errors.go.
package repository
