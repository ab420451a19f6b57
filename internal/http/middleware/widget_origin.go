package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	widgetOriginKey = "widget.origin"
	// HeaderWidgetOrigin carries the embedding page when a trusted proxy
	// relays widget traffic on behalf of the browser.
	HeaderWidgetOrigin = "X-Widget-Origin"
)

// WidgetOrigin records which page the widget request claims to come from.
// Browsers set Origin on cross-site fetches; Referer is the fallback for
// same-origin or legacy clients. X-Widget-Origin is honored only when
// trustClaimed is set, since any client can forge it.
func WidgetOrigin(trustClaimed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin == "" || strings.EqualFold(origin, "null") {
			if ref := strings.TrimSpace(c.Request.Referer()); ref != "" {
				origin = ref
			}
		}
		if trustClaimed {
			if claimed := strings.TrimSpace(c.GetHeader(HeaderWidgetOrigin)); claimed != "" {
				origin = claimed
			}
		}
		c.Set(widgetOriginKey, origin)
		c.Next()
	}
}

// GetWidgetOrigin returns the origin recorded by WidgetOrigin.
func GetWidgetOrigin(c *gin.Context) string {
	v, _ := c.Get(widgetOriginKey)
	return asString(v)
}
