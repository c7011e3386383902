package backend

import (
	"encoding/json"
	"fmt"
)

// ResultOK - RESULT_CODE успешного ответа.
const ResultOK = "0000"

// Envelope - общий конверт всех ответов бэкенда.
type Envelope struct {
	Code string          `json:"RESULT_CODE"`
	Data json.RawMessage `json:"RESULT_DATA,omitempty"`
	Msg  string          `json:"RESULT_MSG,omitempty"`
}

// Record - запись сущности как её отдаёт бэкенд.
type Record map[string]any

// Page - страница списка.
type Page struct {
	List  []Record `json:"LIST"`
	Total int      `json:"TOTAL"`
}

// ResultError - бэкенд ответил не-успехом (или не ответил вовсе).
type ResultError struct {
	Status int    // HTTP-статус, 0 если до ответа не дошло
	Code   string // RESULT_CODE
	Msg    string // RESULT_MSG
	Op     string // "GET /coupon"
	Err    error  // транспортная ошибка
}

func (e *ResultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Msg, e.Code)
	}
	return fmt.Sprintf("%s: result code %s (http %d)", e.Op, e.Code, e.Status)
}

func (e *ResultError) Unwrap() error { return e.Err }

// Message - текст для тоста.
func (e *ResultError) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "request failed (" + e.Code + ")"
}
