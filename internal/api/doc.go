// Package api 處理 HTTP 請求路由和處理。
//
// 子包 handlers 包含了所有的 HTTP 處理器，
// 它負責將 HTTP 請求轉換為適當的服務調用，並將 apperr 錯誤轉換為 HTTP 響應。
package api
