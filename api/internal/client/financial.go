package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qx/taskmate_robot/api/internal/model"
)

// GetFinancial fetches a ledger by store id.
func (c *Client) GetFinancial(ctx context.Context, oid string) (*model.Financial, error) {
	var fin model.Financial
	if err := c.do(ctx, http.MethodGet, "/financial/"+oid, nil, &fin); err != nil {
		return nil, err
	}
	return &fin, nil
}

// GetUserFinancial fetches the personal ledger of a user.
func (c *Client) GetUserFinancial(ctx context.Context, tid int64) (*model.Financial, error) {
	var fin model.Financial
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/financial/user/%d", tid), nil, &fin); err != nil {
		return nil, err
	}
	return &fin, nil
}

// GetGroupFinancial fetches a group's shared ledger.
func (c *Client) GetGroupFinancial(ctx context.Context, groupOid string) (*model.Financial, error) {
	var fin model.Financial
	if err := c.do(ctx, http.MethodGet, "/financial/group/"+groupOid, nil, &fin); err != nil {
		return nil, err
	}
	return &fin, nil
}

// CreateFinancial persists a new ledger and returns its assigned oid.
func (c *Client) CreateFinancial(ctx context.Context, fin *model.Financial) (string, error) {
	body, err := requestBody(fin, "financial_oid")
	if err != nil {
		return "", err
	}
	var resp struct {
		FinancialOid string `json:"financial_oid"`
	}
	if err := c.do(ctx, http.MethodPost, "/financial", body, &resp); err != nil {
		return "", err
	}
	return resp.FinancialOid, nil
}

// UpdateFinancial overwrites the ledger document.
func (c *Client) UpdateFinancial(ctx context.Context, fin *model.Financial) error {
	body, err := requestBody(fin, "financial_oid")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/financial/"+fin.FinancialOid, body, nil)
}

// AddCategory appends a category to the ledger.
func (c *Client) AddCategory(ctx context.Context, financialOid string, category *model.Category) error {
	return c.do(ctx, http.MethodPost, "/financial/"+financialOid+"/category", category, nil)
}

// UpdateCategory replaces the category addressed by its old
// name+description natural key. Embedded categories are not independently
// addressable by id.
func (c *Client) UpdateCategory(ctx context.Context, financialOid, oldName, oldDescription string, category *model.Category) error {
	body := map[string]any{
		"name":        oldName,
		"description": oldDescription,
		"category":    category,
	}
	return c.do(ctx, http.MethodPut, "/financial/"+financialOid+"/category", body, nil)
}

// AddExpense appends an expense to the category addressed by its
// name+description natural key.
func (c *Client) AddExpense(ctx context.Context, financialOid string, category *model.Category, expense *model.Expense) error {
	body := map[string]any{
		"category_name":        category.Name,
		"category_description": category.Description,
		"expense":              expense,
	}
	return c.do(ctx, http.MethodPost, "/financial/"+financialOid+"/expense", body, nil)
}

// DeleteFinancial removes the ledger document.
func (c *Client) DeleteFinancial(ctx context.Context, oid string) error {
	return c.do(ctx, http.MethodDelete, "/financial/"+oid, nil, nil)
}
