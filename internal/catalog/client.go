// Package catalog は外部カードカタログAPIのクライアントを提供する。
// 名前によるあいまい検索とフリーテキスト検索を内部のカード属性に変換する。
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/hitoshi/rhystic/internal/metrics"
	"github.com/hitoshi/rhystic/internal/model"
	"github.com/hitoshi/rhystic/internal/security"
)

// searchFilter は検索クエリに常に付与する絞り込み条件。
// 紙で印刷された全ての版を対象にする。
const searchFilter = "+unique:prints+(game:paper)"

// Client は外部カードカタログAPIのクライアント。
// 通信エラー・タイムアウト・該当なしは全て「カードが見つからない」に正規化され、
// 呼び出し元にトランスポートの詳細が漏れることはない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	sanitizer  security.TextSanitizerService
	collector  metrics.MetricsCollector
	limiter    *rate.Limiter
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// 外部カタログのレート制限ポリシーに合わせ、送信リクエストを毎秒10件に抑える。
func NewClient(httpClient *http.Client, logger *slog.Logger, sanitizer security.TextSanitizerService, collector metrics.MetricsCollector, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		sanitizer:  sanitizer,
		collector:  collector,
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// catalogCard はカタログAPIのカードオブジェクトのワイヤ表現。
type catalogCard struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OracleText string `json:"oracle_text"`
	ManaCost   string `json:"mana_cost"`
	Rarity     string `json:"rarity"`
	ImageURIs  struct {
		Normal string `json:"normal"`
	} `json:"image_uris"`
	Prices struct {
		USD string `json:"usd"`
	} `json:"prices"`
}

// searchResponse は検索エンドポイントのレスポンス。
type searchResponse struct {
	TotalCards int           `json:"total_cards"`
	Data       []catalogCard `json:"data"`
}

// FindByName はカード名のあいまい検索で1枚のカード属性を取得する。
// 見つからない場合・通信エラー・タイムアウトはいずれもnilを返す（カード未検出扱い）。
func (c *Client) FindByName(ctx context.Context, name string) (*model.Card, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/cards/named?fuzzy=%s", c.baseURL, url.QueryEscape(name))

	var wire catalogCard
	if ok := c.get(ctx, reqURL, &wire); !ok {
		return nil, nil
	}
	if wire.ID == "" {
		return nil, nil
	}

	card := c.toCard(wire)
	return &card, nil
}

// Search はフリーテキスト検索でカードの一覧を取得する。
// sortByとdirは任意で、両方指定された場合のみ並び替えをAPIに委譲する。
// 見つからない場合・通信エラーは空スライスを返す。
func (c *Client) Search(ctx context.Context, query, sortBy, dir string) ([]model.CardSummary, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	// 元のカタログAPIはクエリ中の空白をハイフンとして扱う
	q := url.QueryEscape(strings.ReplaceAll(query, " ", "-"))
	reqURL := fmt.Sprintf("%s/cards/search?q=%s%s", c.baseURL, q, searchFilter)
	if sortBy != "" && dir != "" {
		reqURL += "&order=" + url.QueryEscape(sortBy) + "&dir=" + url.QueryEscape(dir)
	}

	var wire searchResponse
	if ok := c.get(ctx, reqURL, &wire); !ok {
		return nil, nil
	}

	summaries := make([]model.CardSummary, 0, len(wire.Data))
	for _, w := range wire.Data {
		card := c.toCard(w)
		summaries = append(summaries, model.CardSummary{
			ID:       card.ID,
			Name:     card.Name,
			ImageURL: card.ImageURL,
			ManaCost: card.ManaCost,
			Price:    card.Price,
			Rarity:   card.Rarity,
		})
	}
	return summaries, nil
}

// get はレート制限付きでGETリクエストを実行し、レスポンスJSONをoutにデコードする。
// 成功時はtrueを返す。失敗は全て警告ログを出してfalseを返す（カード未検出扱い）。
func (c *Client) get(ctx context.Context, reqURL string, out any) (ok bool) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false
	}

	start := time.Now()
	defer func() {
		c.collector.RecordCatalogLatency(time.Since(start))
		c.collector.RecordCatalogLookup(ok)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.Warn("failed to build catalog request",
			slog.String("error", err.Error()),
		)
		return false
	}
	req.Header.Set("User-Agent", "Rhystic/1.0 Card Marketplace")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("catalog request failed",
			slog.String("error", err.Error()),
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 404（該当なし）は正常系に近いのでログレベルを下げる
		if resp.StatusCode == http.StatusNotFound {
			c.logger.Debug("catalog returned no results")
		} else {
			c.logger.Warn("catalog returned error status",
				slog.Int("http_status", resp.StatusCode),
			)
		}
		return false
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn("failed to decode catalog response",
			slog.String("error", err.Error()),
		)
		return false
	}

	return true
}

// toCard はワイヤ表現を内部のカード属性に変換する。
// テキスト項目はサニタイズし、価格はUSD文字列から10進数に変換する（未設定は0）。
func (c *Client) toCard(w catalogCard) model.Card {
	price := decimal.Zero
	if w.Prices.USD != "" {
		if p, err := decimal.NewFromString(w.Prices.USD); err == nil && !p.IsNegative() {
			price = p
		}
	}

	return model.Card{
		ID:         w.ID,
		Name:       c.sanitizer.Sanitize(w.Name),
		OracleText: c.sanitizer.Sanitize(w.OracleText),
		ImageURL:   w.ImageURIs.Normal,
		ManaCost:   w.ManaCost,
		Price:      price,
		Rarity:     w.Rarity,
	}
}
