package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paysliphq/payslips-backend/internal/entity"
	"github.com/paysliphq/payslips-backend/internal/repository"
)

func (s *Server) handleListEmployees(c *gin.Context) {
	filter := repository.EmployeeFilter{
		Search:     c.Query("search"),
		Department: c.Query("department"),
		Status:     c.Query("status"),
	}

	employees, err := s.employees.List(c.Request.Context(), filter)
	if err != nil {
		s.abortError(c, err)
		return
	}
	if employees == nil {
		employees = []entity.EmployeeListItem{}
	}
	c.JSON(http.StatusOK, employees)
}

func (s *Server) handleGetEmployee(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	emp, err := s.employees.Get(c.Request.Context(), id)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, emp)
}
