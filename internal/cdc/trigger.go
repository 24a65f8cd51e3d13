package cdc

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/envelope"
	"github.com/wildmix/scribe/internal/scribeerr"
)

// triggerSource implements source using an AFTER ROW audit trigger plus a
// polling table (scribe_audit_log), for deployments that cannot or do not
// want to enable logical replication.
type triggerSource struct {
	pool   *pgxpool.Pool
	tables []string
}

func newTriggerSource(pool *pgxpool.Pool, tables []string) *triggerSource {
	return &triggerSource{pool: pool, tables: tables}
}

func (s *triggerSource) Setup(ctx context.Context) error {
	const createLogTable = `
CREATE TABLE IF NOT EXISTS scribe_audit_log (
	id          BIGSERIAL PRIMARY KEY,
	table_name  TEXT NOT NULL,
	operation   TEXT NOT NULL,
	pk_value    TEXT NOT NULL,
	old_data    JSONB,
	new_data    JSONB,
	txid        BIGINT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed   BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_scribe_audit_log_unprocessed ON scribe_audit_log (id) WHERE NOT processed;
`
	if _, err := s.pool.Exec(ctx, createLogTable); err != nil {
		return scribeerr.Wrap(scribeerr.KindPgQuery, "create scribe_audit_log table", err)
	}

	const createFunc = `
CREATE OR REPLACE FUNCTION scribe_audit() RETURNS trigger AS $$
DECLARE
	pk_col  TEXT;
	pk_val  TEXT;
BEGIN
	SELECT a.attname INTO pk_col
	FROM pg_index i
	JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
	WHERE i.indrelid = TG_RELID AND i.indisprimary
	LIMIT 1;
	IF pk_col IS NULL THEN
		pk_col := 'id';
	END IF;

	IF TG_OP = 'DELETE' THEN
		EXECUTE format('SELECT ($1).%I::text', pk_col) INTO pk_val USING OLD;
		INSERT INTO scribe_audit_log(table_name, operation, pk_value, old_data, txid)
		VALUES (TG_TABLE_NAME, lower(TG_OP), pk_val, to_jsonb(OLD), txid_current());
	ELSIF TG_OP = 'UPDATE' THEN
		EXECUTE format('SELECT ($1).%I::text', pk_col) INTO pk_val USING NEW;
		INSERT INTO scribe_audit_log(table_name, operation, pk_value, old_data, new_data, txid)
		VALUES (TG_TABLE_NAME, lower(TG_OP), pk_val, to_jsonb(OLD), to_jsonb(NEW), txid_current());
	ELSE
		EXECUTE format('SELECT ($1).%I::text', pk_col) INTO pk_val USING NEW;
		INSERT INTO scribe_audit_log(table_name, operation, pk_value, new_data, txid)
		VALUES (TG_TABLE_NAME, lower(TG_OP), pk_val, to_jsonb(NEW), txid_current());
	END IF;
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;
`
	if _, err := s.pool.Exec(ctx, createFunc); err != nil {
		return scribeerr.Wrap(scribeerr.KindPgQuery, "create scribe_audit function", err)
	}

	for _, table := range s.tables {
		trigName := fmt.Sprintf("scribe_audit_trg_%s", table)
		ddl := fmt.Sprintf(`
DROP TRIGGER IF EXISTS %[1]s ON %[2]s;
CREATE TRIGGER %[1]s
AFTER INSERT OR UPDATE OR DELETE ON %[2]s
FOR EACH ROW EXECUTE FUNCTION scribe_audit();
`, trigName, pgx.Identifier{table}.Sanitize())
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return scribeerr.Wrap(scribeerr.KindPgQuery, "install trigger on "+table, err)
		}
	}
	return nil
}

const triggerBatchSize = 100

func (s *triggerSource) Poll(ctx context.Context) ([]Change, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindPgQuery, "begin poll transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, table_name, operation, pk_value, old_data, new_data, txid, observed_at
		FROM scribe_audit_log
		WHERE NOT processed
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, triggerBatchSize)
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindPgQuery, "poll scribe_audit_log", err)
	}

	var ids []int64
	var changes []Change
	for rows.Next() {
		var (
			id                   int64
			table, op, pk        string
			oldData, newData     []byte
			txid                 int64
			observedAt           time.Time
		)
		if err := rows.Scan(&id, &table, &op, &pk, &oldData, &newData, &txid, &observedAt); err != nil {
			rows.Close()
			return nil, scribeerr.Wrap(scribeerr.KindPgQuery, "scan audit log row", err)
		}
		ids = append(ids, id)

		c := Change{
			Table:      table,
			Operation:  envelope.Operation(op),
			PrimaryKey: pk,
			TxID:       fmt.Sprintf("%d", txid),
			ObservedAt: observedAt,
		}
		if len(oldData) > 0 {
			c.BeforeHash = digest.HashBytes(oldData)
		}
		if len(newData) > 0 {
			c.AfterHash = digest.HashBytes(newData)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, scribeerr.Wrap(scribeerr.KindPgQuery, "iterate audit log rows", err)
	}
	rows.Close()

	if len(ids) > 0 {
		if _, err := tx.Exec(ctx, `UPDATE scribe_audit_log SET processed = true WHERE id = ANY($1)`, ids); err != nil {
			return nil, scribeerr.Wrap(scribeerr.KindPgQuery, "mark audit log rows processed", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindPgQuery, "commit poll transaction", err)
	}
	return changes, nil
}

// Ack is a no-op: Poll already marks rows processed=true inside the same
// transaction that reads them, so the acknowledgment is atomic with the
// read and there is nothing left to confirm afterward.
func (s *triggerSource) Ack(ctx context.Context) error {
	return nil
}

// Cleanup drops the audit trigger, function, and polling table that Setup
// installs. It is idempotent and safe to run against an upstream Setup
// never touched.
func (s *triggerSource) Cleanup(ctx context.Context) error {
	for _, table := range s.tables {
		trigName := fmt.Sprintf("scribe_audit_trg_%s", table)
		ddl := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trigName, pgx.Identifier{table}.Sanitize())
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return scribeerr.Wrap(scribeerr.KindPgQuery, "drop trigger on "+table, err)
		}
	}
	if _, err := s.pool.Exec(ctx, `DROP FUNCTION IF EXISTS scribe_audit() CASCADE`); err != nil {
		return scribeerr.Wrap(scribeerr.KindPgQuery, "drop scribe_audit function", err)
	}
	if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS scribe_audit_log`); err != nil {
		return scribeerr.Wrap(scribeerr.KindPgQuery, "drop scribe_audit_log table", err)
	}
	return nil
}

func (s *triggerSource) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
