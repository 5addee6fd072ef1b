package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := c.Param(param)
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
		})
		return ""
	}
	return idStr
}

func learnerID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(LearnerHeader))
}

// bindForm reads a response form from either a JSON object or a url-encoded
// body. JSON values may be strings, booleans, numbers or lists of those.
func bindForm(c *gin.Context) (url.Values, error) {
	if c.ContentType() != gin.MIMEJSON {
		if err := c.Request.ParseForm(); err != nil {
			return nil, err
		}
		return c.Request.PostForm, nil
	}

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, err
	}

	form := url.Values{}
	for key, value := range body {
		switch v := value.(type) {
		case []interface{}:
			for _, item := range v {
				form.Add(key, formValue(item))
			}
		case nil:
		default:
			form.Set(key, formValue(v))
		}
	}
	return form, nil
}

func formValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
