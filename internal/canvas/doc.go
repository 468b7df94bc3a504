// Package canvas описывает вызовы task как значения и их композицию.
//
// # Signature
//
// Signature - неизменяемое описание вызова: имя task, args, kwargs, опции.
// Создаётся через New и ничего не публикует.
//
//	add := canvas.New("math.add", []any{2, 3}, nil, canvas.WithQueue("math"))
//
// # Chain
//
// Chain объединяет signatures в упорядоченную последовательность.
// Результат звена i добавляется первым аргументом звена i+1.
// Вложенные chains разворачиваются в одну плоскую последовательность.
//
//	c, err := canvas.Chain(a, b, c)
//	c2, err := c.Then(d) // [a, b, c, d], не [[a, b, c], d]
//
// # Envelope
//
// ToEnvelope превращает signature в публикуемый domain.Envelope.
// Для chain публикуется только голова, остальные звенья лежат
// в Envelope.Chain. Состояние chain живёт в самом сообщении, а не
// в памяти воркера, поэтому chain переживает падение воркера между звеньями.
//
// Next строит следующее звено после успешного выполнения текущего.
package canvas
