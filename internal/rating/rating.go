// Package rating содержит чистые функции голосования: не более одного голоса
// на пользователя, значения только +1/-1, агрегат Up/Down всегда
// согласован с картой голосов. Сохранение (OCC-цикл) выполняет сервисный слой.
package rating

import (
	"errors"

	"github.com/pribylovaa/go-forum/internal/models"
)

// ErrInvalidVote — голос вне {+1, -1}.
var ErrInvalidVote = errors.New("invalid vote")

// Apply ставит голос пользователя userID в сообщение m.
// Повторный голос того же направления ничего не меняет (changed == false).
// Противоположный голос заменяет прежний. После изменения счётчики
// пересчитываются по карте голосов.
func Apply(m *models.Message, userID string, v models.Vote) (changed bool, err error) {
	if !v.Valid() {
		return false, ErrInvalidVote
	}

	prev, had := m.UserRatings[userID]
	if had && prev == v {
		// Лечим разошедшиеся счётчики, даже если голос тот же.
		return Tally(m), nil
	}

	if m.UserRatings == nil {
		m.UserRatings = make(map[string]models.Vote, 1)
	}

	m.UserRatings[userID] = v
	Tally(m)

	return true, nil
}

// Clear снимает голос пользователя. Отсутствующий голос — не изменение.
func Clear(m *models.Message, userID string) (changed bool) {
	if _, had := m.UserRatings[userID]; !had {
		return Tally(m)
	}

	delete(m.UserRatings, userID)
	Tally(m)

	return true
}

// Tally пересчитывает Up/Down по карте голосов. Записи со значением вне
// {+1, -1} удаляются. Возвращает true, если агрегат или карта изменились.
func Tally(m *models.Message) bool {
	var r models.Ratings
	dropped := false

	for u, v := range m.UserRatings {
		switch v {
		case models.VoteUp:
			r.Up++
		case models.VoteDown:
			r.Down++
		default:
			delete(m.UserRatings, u)
			dropped = true
		}
	}

	changed := dropped || r != m.Ratings
	m.Ratings = r

	return changed
}

// Result формирует ответ голосования для пользователя.
func Result(m models.Message, userID string) models.RatingResult {
	return models.RatingResult{
		Ratings:    m.Ratings,
		UserRating: m.UserRatings[userID],
	}
}
