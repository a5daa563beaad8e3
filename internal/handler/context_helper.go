package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-makeup-api/internal/middleware"
	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

func actorFromContext(c *gin.Context) (models.Actor, bool) {
	actor := middleware.ActorFromContext(c)
	return actor, actor.UserID != ""
}

func parseDateParam(raw, field string) (models.Date, error) {
	if raw == "" {
		return models.Date{}, appErrors.Clone(appErrors.ErrValidation, field+" is required")
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		return models.Date{}, appErrors.Clone(appErrors.ErrValidation, "invalid "+field+", expected YYYY-MM-DD")
	}
	return date, nil
}

// dateRangeQuery reads from/to, defaulting from to today and to to from plus defaultSpan days.
func dateRangeQuery(c *gin.Context, today models.Date, defaultSpan int) (models.Date, models.Date, error) {
	from := today
	if raw := c.Query("from"); raw != "" {
		parsed, err := parseDateParam(raw, "from")
		if err != nil {
			return models.Date{}, models.Date{}, err
		}
		from = parsed
	}
	to := from.AddDays(defaultSpan)
	if raw := c.Query("to"); raw != "" {
		parsed, err := parseDateParam(raw, "to")
		if err != nil {
			return models.Date{}, models.Date{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
