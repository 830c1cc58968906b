// Package retry содержит чистую политику повторов с экспоненциальной
// задержкой. Политика — функция номера попытки, не привязанная ни к
// какому планировщику: вызывающий сам решает, как ждать.
package retry

import "time"

// Policy определяет задержку перед следующей попыткой
type Policy interface {
	// NextDelay возвращает задержку перед попыткой attempt (с нуля)
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff экспоненциальная задержка с верхней границей
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoff политика переподключения realtime-канала по умолчанию
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// NextDelay возвращает InitialDelay * Multiplier^attempt, не выше MaxDelay
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= eb.Multiplier
	}

	result := time.Duration(float64(eb.InitialDelay) * multiplier)
	if result > eb.MaxDelay || result < 0 {
		result = eb.MaxDelay
	}

	return result
}
