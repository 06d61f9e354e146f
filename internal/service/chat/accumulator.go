package chat

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// tokensPerFragment — грубая оценка числа токенов в одном фрагменте потока.
const tokensPerFragment = 2.75

// Accumulator собирает фрагменты потокового ответа в одно сообщение ассистента.
type Accumulator struct {
	sb    strings.Builder
	count int
}

func NewAccumulator() *Accumulator { return &Accumulator{} }

// Add добавляет фрагмент. Пустые фрагменты (служебные чанки) не считаются.
func (a *Accumulator) Add(fragment string) bool {
	if fragment == "" {
		return false
	}
	a.sb.WriteString(html.UnescapeString(fragment))
	a.count++
	return true
}

func (a *Accumulator) Text() string { return a.sb.String() }

func (a *Accumulator) Count() int { return a.count }

func (a *Accumulator) Message() Message {
	return Message{Role: RoleAssistant, Text: a.sb.String()}
}

// Throughput форматирует оценку скорости генерации.
func Throughput(fragments int, elapsed time.Duration) string {
	tps := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		tps = float64(fragments) * tokensPerFragment / secs
	}
	return fmt.Sprintf("%.1f tokens/sec.", tps)
}

// ZeroThroughput — метрика хода, завершившегося ошибкой.
const ZeroThroughput = "0 tokens/sec."
