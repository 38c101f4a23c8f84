package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the assignment-lifecycle invariants checked during stress
// runs. Each query must return zero rows on a healthy database.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_unlock_cap",
			SQL: `SELECT d.id, d.unlock_cap, COUNT(*) AS unlocked
                  FROM demands d
                  JOIN demand_assignments a ON a.demand_id = d.id AND a.status = 'unlocked'
                  WHERE d.unlock_cap IS NOT NULL
                  GROUP BY d.id, d.unlock_cap
                  HAVING COUNT(*) > d.unlock_cap`,
		},
		{
			Name: "O2_unlock_counter_floor",
			SQL: `SELECT d.id, d.unlock_count, COUNT(*) AS unlocked
                  FROM demands d
                  JOIN demand_assignments a ON a.demand_id = d.id AND a.status = 'unlocked'
                  GROUP BY d.id, d.unlock_count
                  HAVING COUNT(*) > d.unlock_count`,
		},
		{
			Name: "O3_unlock_marker_stamped",
			SQL: `SELECT demand_id, supplier_id
                  FROM demand_assignments
                  WHERE (unlocked_by_admin AND unlocked_at IS NULL)
                     OR (status = 'unlocked' AND NOT unlocked_by_admin)`,
		},
		{
			Name: "O4_free_billing_zero_amount",
			SQL: `SELECT demand_id, supplier_id, amount_cents
                  FROM demand_assignments
                  WHERE billing_type = 'free' AND amount_cents <> 0`,
		},
		{
			Name: "O5_unlocked_is_paid",
			SQL: `SELECT demand_id, supplier_id, payment_status
                  FROM demand_assignments
                  WHERE status = 'unlocked' AND payment_status <> 'paid'`,
		},
		{
			Name: "O6_status_domain",
			SQL: `SELECT demand_id, supplier_id, status
                  FROM demand_assignments
                  WHERE status NOT IN ('sent', 'unlocked', 'canceled')`,
		},
		{
			Name: "O7_access_requires_assignment",
			SQL: `SELECT x.demand_id, x.supplier_id
                  FROM demand_accesses x
                  LEFT JOIN demand_assignments a
                    ON a.demand_id = x.demand_id AND a.supplier_id = x.supplier_id
                  WHERE a.supplier_id IS NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample
// row text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
