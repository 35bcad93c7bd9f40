package http

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Pagination contains offset-based pagination info.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// parsePagination reads offset and limit from the query string.
func parsePagination(c *fiber.Ctx, defLimit, maxLimit int) (Pagination, error) {
	p := Pagination{Offset: c.QueryInt("offset", 0), Limit: c.QueryInt("limit", defLimit)}
	if p.Offset < 0 {
		return p, fmt.Errorf("offset must not be negative")
	}
	if p.Limit <= 0 || p.Limit > maxLimit {
		return p, fmt.Errorf("limit must be between 1 and %d", maxLimit)
	}
	return p, nil
}

// paginate returns the page of items selected by p.
func paginate[T any](items []T, p Pagination) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

// SetLinkHeaders adds RFC 8288 Link headers for paginated responses.
// Query parameters other than offset and limit are preserved.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	base := c.Path()
	var extra string
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		key := string(k)
		if key == "offset" || key == "limit" {
			return
		}
		extra += "&" + url.QueryEscape(key) + "=" + url.QueryEscape(string(v))
	})
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d%s>; rel="%s"`, base, offset, p.Limit, extra, rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	links = append(links, link(max(p.Total-p.Limit, 0), "last"))

	// Keep links set earlier, such as a successor-version link.
	if prev := c.Response().Header.Peek(fiber.HeaderLink); len(prev) > 0 {
		links = append([]string{string(prev)}, links...)
	}
	c.Set(fiber.HeaderLink, strings.Join(links, ", "))
}
