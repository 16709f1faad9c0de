package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"feedgen/internal/domain"

	"github.com/tidwall/gjson"
)

// Fetcher загружает тело ответа по URL.
type Fetcher interface {
	FetchAll(ctx context.Context, url string) ([]byte, error)
}

// HTTPCatalog читает категории и предложения из JSON API магазина.
// Ответы разбираются через gjson: числовые и логические поля принимаются
// и как числа, и как строки.
type HTTPCatalog struct {
	fetcher Fetcher
	baseURL string
	log     *slog.Logger
}

// NewHTTPCatalog создает источник данных поверх API с корнем baseURL.
func NewHTTPCatalog(fetcher Fetcher, baseURL string, log *slog.Logger) *HTTPCatalog {
	return &HTTPCatalog{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With(slog.String("component", "http-catalog")),
	}
}

// GetCategories возвращает все категории: GET {base}/categories.
// Ответ - массив объектов либо объект с полем items.
func (c *HTTPCatalog) GetCategories(ctx context.Context) ([]domain.Category, error) {
	const op = "catalog.HTTPCatalog.GetCategories"
	doc, err := c.get(ctx, c.baseURL+"/categories")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items := list(doc)
	categories := make([]domain.Category, 0, len(items))
	for _, item := range items {
		parentID := item.Get("parent_id").String()
		if parentID == "" {
			parentID = item.Get("parent.id").String()
		}
		categories = append(categories, domain.Category{
			ID:       item.Get("id").String(),
			Level:    int(item.Get("level").Int()),
			ParentID: parentID,
			Slug:     item.Get("slug").String(),
			URL:      item.Get("url").String(),
			Title:    item.Get("title").String(),
		})
	}
	c.log.Debug("Categories fetched", slog.Int("count", len(categories)))
	return categories, nil
}

// GetOffersTotal возвращает количество предложений: GET {base}/offers/total.
// Ответ - число либо объект с полем total.
func (c *HTTPCatalog) GetOffersTotal(ctx context.Context) (int, error) {
	const op = "catalog.HTTPCatalog.GetOffersTotal"
	doc, err := c.get(ctx, c.baseURL+"/offers/total")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	total := doc
	if doc.IsObject() {
		total = doc.Get("total")
	}
	if !total.Exists() {
		return 0, fmt.Errorf("%s: response has no total", op)
	}
	return int(total.Int()), nil
}

// GetOffers возвращает страницу предложений: GET {base}/offers?limit=&page=.
func (c *HTTPCatalog) GetOffers(ctx context.Context, limit, page int) ([]domain.Offer, error) {
	const op = "catalog.HTTPCatalog.GetOffers"
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("page", strconv.Itoa(page))
	doc, err := c.get(ctx, c.baseURL+"/offers?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("%s: page %d: %w", op, page, err)
	}
	items := list(doc)
	offers := make([]domain.Offer, 0, len(items))
	for _, item := range items {
		offers = append(offers, domain.Offer{
			ID:          item.Get("id").String(),
			CategoryID:  item.Get("category_id").String(),
			Available:   item.Get("available").Bool(),
			Name:        item.Get("name").String(),
			URL:         item.Get("url").String(),
			Price:       item.Get("price").String(),
			CurrencyID:  item.Get("currency_id").String(),
			Picture:     item.Get("picture").String(),
			Description: item.Get("description").String(),
		})
	}
	return offers, nil
}

func (c *HTTPCatalog) get(ctx context.Context, endpoint string) (gjson.Result, error) {
	body, err := c.fetcher.FetchAll(ctx, endpoint)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON from %s", endpoint)
	}
	return gjson.ParseBytes(body), nil
}

func list(doc gjson.Result) []gjson.Result {
	if doc.IsObject() {
		return doc.Get("items").Array()
	}
	return doc.Array()
}
