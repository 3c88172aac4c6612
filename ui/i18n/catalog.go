// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package i18n

// zhHant holds the Traditional Chinese text for each English key.
var zhHant = []struct{ en, zh string }{
	// app
	{"Loading...", "載入中..."},
	{"Logging in...", "登入中..."},
	{"Login failed: %s", "登入失敗: %s"},
	{"Logout failed: %s", "登出失敗: %s"},

	// nav
	{"Home", "首頁"},
	{"Protected page", "受保護頁面"},
	{"Welcome, %s!", "歡迎, %s!"},
	{"Login", "登入"},
	{"Logout", "登出"},

	// guard
	{"Login required", "需要登入"},
	{"You need to log in to access this page", "您需要登入才能訪問此頁面"},
	{"Press %s to log in", "按 %s 登入"},

	// home
	{"Identity provider integration demo", "身分提供者整合測試"},
	{"Authentication status", "認證狀態"},
	{"Logged in: %s", "已登入: %s"},
	{"yes", "是"},
	{"no", "否"},
	{"Username: %s", "使用者名稱: %s"},
	{"Token present: %s", "Token 存在: %s"},
	{"Features", "功能說明"},
	{"Home: shows the current authentication status", "首頁: 顯示當前認證狀態"},
	{"Protected page: requires login", "受保護頁面: 需要登入才能訪問"},
	{"Login/Logout: authenticate with the identity provider", "登入/登出功能: 透過身分提供者進行身份驗證"},
	{"Token (debug)", "Token 資訊 (除錯用)"},
	{"Press %s to show the token", "按 %s 查看 Token"},
	{"Press %s to hide the token", "按 %s 隱藏 Token"},

	// protected
	{"Protected page reached", "受保護的頁面"},
	{"You are logged in and can access the protected page.", "恭喜！你已經成功登入並訪問了受保護的頁面。"},
	{"User information", "使用者資訊"},
	{"Status: logged in", "認證狀態: 已登入"},
	{"Available actions", "可用操作"},
	{"View your profile", "查看個人資料"},
	{"Call protected APIs", "訪問受保護的 API"},
	{"Perform authenticated actions", "執行需要認證的操作"},
	{"Backend API tests", "後端 API 測試"},
	{"Call protected API", "測試受保護 API"},
	{"Get user info", "獲取使用者資訊"},
	{"Get token info", "獲取 Token 資訊"},
	{"Debug token", "除錯 Token"},
	{"Test without verification", "測試不驗證"},
	{"Basic validation", "基本驗證"},
	{"Calling...", "呼叫中..."},
	{"Error: %s", "錯誤: %s"},
	{"API response:", "API 回應:"},
	{"No token available", "沒有可用的 Token"},
	{"API call failed: %d %s", "API 呼叫失敗: %d %s"},
	{"Unknown error", "未知錯誤"},
}
