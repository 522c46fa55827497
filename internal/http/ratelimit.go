package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v9"

	"moff.io/moff-wallet/pkg/common"
	"moff.io/moff-wallet/pkg/log"
)

// Allower is satisfied by *redis_rate.Limiter.
type Allower interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

const rateLimitKeyPrefix = "wallet_http_rate:"

// RateLimit allows perMinute requests per client ip. Limiter failures let
// the request through.
func RateLimit(limiter Allower, perMinute int) gin.HandlerFunc {
	limit := redis_rate.PerMinute(perMinute)
	return func(ctx *gin.Context) {
		ip := ctx.ClientIP()
		if ip == "" {
			ip = common.TrimIP(ctx.Request.RemoteAddr)
		}
		res, err := limiter.Allow(ctx.Request.Context(), rateLimitKeyPrefix+ip, limit)
		if err != nil {
			log.Warnf("rate limiter unavailable:%v", err)
			ctx.Next()
			return
		}
		ctx.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed == 0 {
			ctx.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 4290,
				"msg":  "too many requests",
			})
			return
		}
		ctx.Next()
	}
}
