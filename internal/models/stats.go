package models

// SortBy — порядок выдачи поиска.
type SortBy string

const (
	// SortRelevance сохраняет порядок сканирования (значение по умолчанию).
	SortRelevance  SortBy = "relevance"
	SortMostRated  SortBy = "mostRated"
	SortLeastRated SortBy = "leastRated"
	SortNewest     SortBy = "newest"
	SortOldest     SortBy = "oldest"
)

// Valid сообщает, поддерживается ли порядок. Пустое значение допустимо.
func (s SortBy) Valid() bool {
	switch s {
	case "", SortRelevance, SortMostRated, SortLeastRated, SortNewest, SortOldest:
		return true
	default:
		return false
	}
}

// SearchQuery — параметры полнотекстового (подстрочного) поиска.
type SearchQuery struct {
	Query    string
	AuthorID string
	SortBy   SortBy
}

// RatingResult — результат голосования.
// UserRating == 0 означает, что голоса пользователя нет.
type RatingResult struct {
	Ratings    Ratings
	UserRating Vote
}

// UserStats — агрегат активности автора.
type UserStats struct {
	AuthorID    string
	DisplayName string
	TotalPosts  int64
	RootPosts   int64
	Replies     int64
	Upvotes     int64
	Downvotes   int64
}

// CascadeResult — итог каскадного удаления (best-effort).
type CascadeResult struct {
	Deleted int
	Failed  int
}
