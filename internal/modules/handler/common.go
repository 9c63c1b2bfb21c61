package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/valis-ai/valis/internal/modules/serializer"
)

// fail writes err using the status its kind maps to.
func fail(c *gin.Context, err error) {
	status, res := serializer.FromError(err)
	c.JSON(status, res)
}
