// Package middleware 提供了 HTTP 請求處理的中間件。
//
// 目前包含 Bearer JWT 驗證與 zerolog 請求日誌。
package middleware
