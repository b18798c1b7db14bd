package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tranngoclamm/oj-bridge/model"
)

// PoolConfig mirrors the connection options a Postgres-backed store needs.
// If Dsn is set it takes precedence over the individual fields.
type PoolConfig struct {
	Dsn      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	Schema   string

	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
}

// NewPool builds a pgxpool.Pool from cfg, setting the schema search_path via
// an AfterConnect hook and verifying connectivity with a Ping before
// returning.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	dsn := buildDSN(cfg)
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres configuration requires either Dsn or Host+Database")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres dsn: %w", err)
	}
	applyPoolConfig(poolCfg, cfg)

	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return pool, nil
}

func buildDSN(cfg PoolConfig) string {
	if cfg.Dsn != "" {
		return cfg.Dsn
	}
	if cfg.Host == "" || cfg.Database == "" {
		return ""
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		dsnQuoteValue(cfg.Host), port, dsnQuoteValue(cfg.Database), dsnQuoteValue(sslMode))
	if cfg.User != "" {
		dsn += fmt.Sprintf(" user=%s", dsnQuoteValue(cfg.User))
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", dsnQuoteValue(cfg.Password))
	}
	return dsn
}

// dsnQuoteValue quotes a value for libpq's keyword/value connection-string
// format; values may contain spaces or special characters.
func dsnQuoteValue(val string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(val)
	return "'" + escaped + "'"
}

func applyPoolConfig(poolCfg *pgxpool.Config, cfg PoolConfig) {
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 25
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 5
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	} else {
		poolCfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	} else {
		poolCfg.MaxConnLifetime = time.Hour
	}
	poolCfg.HealthCheckPeriod = 30 * time.Second
}

// Postgres is the durable ProjectionStore backend, built on pgx/v5's
// connection pool. It assumes a schema matching the judge platform's
// existing submission/testcase/worker tables; this module owns no
// migrations, only the queries it issues against them.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-constructed pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Problem(problemID string) (model.Problem, error) {
	var (
		ctx = context.Background()
		pr  model.Problem
	)
	var visibility int
	err := p.pool.QueryRow(ctx,
		`SELECT code, points, partial_scoring, testcase_visibility FROM judge_problem WHERE code = $1`,
		problemID,
	).Scan(&pr.Code, &pr.Points, &pr.PartialScoring, &visibility)
	if err != nil {
		return model.Problem{}, fmt.Errorf("store: load problem %s: %w", problemID, err)
	}
	pr.TestCaseVisibility = model.TestCaseVisibility(visibility)
	return pr, nil
}

func (p *Postgres) AllProblemCodes() ([]string, error) {
	var ctx = context.Background()
	rows, err := p.pool.Query(ctx, `SELECT code FROM judge_problem`)
	if err != nil {
		return nil, fmt.Errorf("store: list problem codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("store: scan problem code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (p *Postgres) AuthenticateWorker(workerID string) (string, int, bool, error) {
	var (
		ctx      = context.Background()
		key      string
		tier     int
		disabled bool
	)
	err := p.pool.QueryRow(ctx,
		`SELECT auth_key, tier, disabled FROM judge_worker WHERE name = $1`,
		workerID,
	).Scan(&key, &tier, &disabled)
	if err != nil {
		return "", 0, false, fmt.Errorf("store: authenticate worker %s: %w", workerID, err)
	}
	return key, tier, disabled, nil
}

func (p *Postgres) EnqueueSubmission(sub *model.Submission) error {
	var ctx = context.Background()
	return p.pool.QueryRow(ctx,
		`INSERT INTO judge_submission
			(problem_id, user_id, language_key, source, source_url, time_limit_ns,
			 memory_limit_kb, short_circuit, pretests_only, participation_id,
			 virtual, file_only, file_size_limit, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		 RETURNING id`,
		sub.ProblemID, sub.UserID, sub.LanguageKey, sub.Source, sub.SourceURL,
		sub.TimeLimit.Nanoseconds(), sub.MemoryLimitKB, sub.ShortCircuit, sub.PretestsOnly,
		sub.ParticipationID, sub.Virtual, sub.FileOnly, sub.FileSizeLimit, model.StatusQueued,
	).Scan(&sub.ID)
}

func (p *Postgres) AttemptNo(userID int64, problemID string, participationID *int64) (int, error) {
	var (
		ctx = context.Background()
		n   int
	)
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM judge_submission
		 WHERE user_id = $1 AND problem_id = $2
		   AND participation_id IS NOT DISTINCT FROM $3
		   AND result NOT IN ($4, $5)`,
		userID, problemID, participationID, model.ResultCE, model.ResultIE,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count attempts: %w", err)
	}
	return n, nil
}

func (p *Postgres) LoadSubmission(id int64) (*model.Submission, error) {
	var (
		ctx       = context.Background()
		sub       model.Submission
		timeLimNs int64
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, problem_id, user_id, language_key, source, source_url, time_limit_ns,
			memory_limit_kb, short_circuit, pretests_only, participation_id, virtual,
			file_only, file_size_limit, status, result, case_points, case_total,
			points, time_used, memory_used, current_testcase, batched, batch_id,
			judged_on, judged_date, error
		 FROM judge_submission WHERE id = $1`, id,
	).Scan(
		&sub.ID, &sub.ProblemID, &sub.UserID, &sub.LanguageKey, &sub.Source, &sub.SourceURL,
		&timeLimNs, &sub.MemoryLimitKB, &sub.ShortCircuit, &sub.PretestsOnly, &sub.ParticipationID,
		&sub.Virtual, &sub.FileOnly, &sub.FileSizeLimit, &sub.Status, &sub.Result, &sub.CasePoints,
		&sub.CaseTotal, &sub.Points, &sub.Time, &sub.Memory, &sub.CurrentTestCase, &sub.Batched,
		&sub.BatchID, &sub.JudgedOn, &sub.JudgedDate, &sub.Error,
	)
	if err != nil {
		return nil, fmt.Errorf("store: load submission %d: %w", id, err)
	}
	sub.TimeLimit = time.Duration(timeLimNs)
	return &sub, nil
}

func (p *Postgres) RequeueSubmission(id int64) error {
	var ctx = context.Background()
	_, err := p.pool.Exec(ctx,
		`UPDATE judge_submission SET status = $1, result = $2 WHERE id = $3`,
		model.StatusQueued, model.ResultNone, id)
	if err != nil {
		return fmt.Errorf("store: requeue submission %d: %w", id, err)
	}
	_, err = p.pool.Exec(ctx, `DELETE FROM judge_testcase WHERE submission_id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: clear testcases for %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) MarkProcessing(submissionID int64, judgedOn string) error {
	var ctx = context.Background()
	_, err := p.pool.Exec(ctx,
		`UPDATE judge_submission SET status = $1, judged_on = $2 WHERE id = $3`,
		model.StatusProcessing, judgedOn, submissionID)
	if err != nil {
		return fmt.Errorf("store: mark processing %d: %w", submissionID, err)
	}
	return nil
}

func (p *Postgres) ReplaceTestCases(submissionID int64) error {
	var ctx = context.Background()
	_, err := p.pool.Exec(ctx, `DELETE FROM judge_testcase WHERE submission_id = $1`, submissionID)
	if err != nil {
		return fmt.Errorf("store: replace testcases for %d: %w", submissionID, err)
	}
	return nil
}

func (p *Postgres) InsertTestCases(submissionID int64, cases []model.TestCase) error {
	if len(cases) == 0 {
		return nil
	}
	var ctx = context.Background()
	batch := &pgx.Batch{}
	for _, tc := range cases {
		batch.Queue(
			`INSERT INTO judge_testcase
				(submission_id, position, batch_id, status, points, total,
				 time_used, memory_used, feedback, extended_feedback, output)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			submissionID, tc.Position, tc.BatchID, tc.Status, tc.Points, tc.Total,
			tc.Time, tc.Memory, tc.Feedback, tc.ExtendedFeedback, tc.Output,
		)
	}
	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range cases {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store: insert testcase for %d: %w", submissionID, err)
		}
	}
	return nil
}

func (p *Postgres) FinishGrading(submissionID int64, result model.Result, casePoints, caseTotal, points, maxTime float64, maxMemory int64) error {
	var ctx = context.Background()
	_, err := p.pool.Exec(ctx,
		`UPDATE judge_submission
		 SET status = $1, result = $2, case_points = $3, case_total = $4,
		     points = $5, time_used = $6, memory_used = $7, judged_date = now()
		 WHERE id = $8`,
		model.StatusDone, result, casePoints, caseTotal, points, maxTime, maxMemory, submissionID)
	if err != nil {
		return fmt.Errorf("store: finish grading %d: %w", submissionID, err)
	}
	return nil
}

func (p *Postgres) FailCompile(submissionID int64, log string) error {
	var ctx = context.Background()
	_, err := p.pool.Exec(ctx,
		`UPDATE judge_submission SET status = $1, result = $2, error = $3 WHERE id = $4`,
		model.StatusCompileError, model.ResultCE, log, submissionID)
	if err != nil {
		return fmt.Errorf("store: fail compile %d: %w", submissionID, err)
	}
	return nil
}

func (p *Postgres) FailInternal(submissionID int64, message string) error {
	var ctx = context.Background()
	_, err := p.pool.Exec(ctx,
		`UPDATE judge_submission SET status = $1, result = $2, error = $3 WHERE id = $4`,
		model.StatusInternalErr, model.ResultIE, message, submissionID)
	if err != nil {
		return fmt.Errorf("store: fail internal %d: %w", submissionID, err)
	}
	return nil
}

func (p *Postgres) Terminate(submissionID int64) error {
	var ctx = context.Background()
	_, err := p.pool.Exec(ctx,
		`UPDATE judge_submission SET status = $1, result = $2, points = 0 WHERE id = $3`,
		model.StatusAborted, model.ResultAB, submissionID)
	if err != nil {
		return fmt.Errorf("store: terminate %d: %w", submissionID, err)
	}
	return nil
}
