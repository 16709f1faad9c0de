package domain

// Category представляет раздел каталога.
type Category struct {
	ID       string
	Level    int
	ParentID string
	Slug     string
	URL      string
	Title    string
}

// Offer представляет товарное предложение каталога.
type Offer struct {
	ID          string
	CategoryID  string
	Available   bool
	Name        string
	URL         string
	Price       string
	CurrencyID  string
	Picture     string
	Description string
}
