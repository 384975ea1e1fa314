package postgres

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	purchase_price BIGINT NOT NULL DEFAULT 0,
	selling_price BIGINT NOT NULL DEFAULT 0,
	low_stock_threshold INTEGER NOT NULL DEFAULT 2,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS products_name_key ON products (lower(name));

CREATE TABLE IF NOT EXISTS points_of_sale (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	solde BIGINT NOT NULL DEFAULT 0 CHECK (solde >= 0),
	total_debt_to_owner BIGINT NOT NULL DEFAULT 0 CHECK (total_debt_to_owner >= 0),
	impayer BIGINT NOT NULL DEFAULT 0 CHECK (impayer >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS points_of_sale_name_key ON points_of_sale (lower(name));

CREATE TABLE IF NOT EXISTS stores (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	point_of_sale_id TEXT NOT NULL REFERENCES points_of_sale (id),
	type TEXT NOT NULL CHECK (type IN ('principal', 'secondary')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (point_of_sale_id, type)
);

CREATE TABLE IF NOT EXISTS store_items (
	store_id TEXT NOT NULL REFERENCES stores (id) ON DELETE CASCADE,
	product_id TEXT NOT NULL REFERENCES products (id),
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	PRIMARY KEY (store_id, product_id)
);

CREATE TABLE IF NOT EXISTS cash_register (
	id TEXT PRIMARY KEY,
	current_balance BIGINT NOT NULL DEFAULT 0 CHECK (current_balance >= 0),
	cumulative_in BIGINT NOT NULL DEFAULT 0,
	cumulative_out BIGINT NOT NULL DEFAULT 0,
	last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);
INSERT INTO cash_register (id) VALUES ('main') ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS cash_movements (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	direction TEXT NOT NULL CHECK (direction IN ('IN', 'OUT')),
	category TEXT NOT NULL,
	amount BIGINT NOT NULL CHECK (amount > 0),
	balance_after BIGINT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	reversal BOOLEAN NOT NULL DEFAULT false,
	purchase_id TEXT,
	supplier_id TEXT,
	store_id TEXT,
	point_of_sale_id TEXT,
	owner_payment_id TEXT,
	expense_id TEXT,
	actor TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_movements (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	product_id TEXT NOT NULL,
	from_store_id TEXT,
	to_store_id TEXT,
	quantity INTEGER NOT NULL,
	kind TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	reference_id TEXT,
	reversal BOOLEAN NOT NULL DEFAULT false,
	actor TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS stock_movements_from_idx ON stock_movements (from_store_id, seq);
CREATE INDEX IF NOT EXISTS stock_movements_to_idx ON stock_movements (to_store_id, seq);

CREATE TABLE IF NOT EXISTS suppliers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	contact TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	catalog JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS suppliers_name_key ON suppliers (lower(name));

CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	credit_limit BIGINT NOT NULL DEFAULT 0,
	current_debt BIGINT NOT NULL DEFAULT 0 CHECK (current_debt >= 0),
	is_restricted BOOLEAN NOT NULL DEFAULT false,
	restriction_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS clients_name_key ON clients (lower(name));

CREATE TABLE IF NOT EXISTS client_transactions (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	client_id TEXT NOT NULL,
	type TEXT NOT NULL,
	amount BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	day_sale_id TEXT,
	point_of_sale_id TEXT,
	reversal BOOLEAN NOT NULL DEFAULT false,
	actor TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS client_transactions_client_idx ON client_transactions (client_id, seq);

CREATE TABLE IF NOT EXISTS purchases (
	id TEXT PRIMARY KEY,
	supplier_id TEXT NOT NULL,
	store_id TEXT NOT NULL,
	funding_mode TEXT NOT NULL,
	items JSONB NOT NULL,
	total_amount BIGINT NOT NULL,
	expense_id TEXT,
	buyer TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	purchased_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS day_sales (
	id TEXT PRIMARY KEY,
	point_of_sale_id TEXT NOT NULL,
	store_id TEXT NOT NULL,
	seller TEXT NOT NULL DEFAULT '',
	is_credit BOOLEAN NOT NULL DEFAULT false,
	client_id TEXT,
	items JSONB NOT NULL,
	total_amount BIGINT NOT NULL,
	sale_date TIMESTAMPTZ NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS owner_payments (
	id TEXT PRIMARY KEY,
	point_of_sale_id TEXT NOT NULL,
	amount BIGINT NOT NULL,
	method TEXT NOT NULL,
	received_by TEXT NOT NULL DEFAULT '',
	cash_movement_id TEXT,
	note TEXT NOT NULL DEFAULT '',
	paid_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transfers (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	from_store_id TEXT NOT NULL,
	to_store_id TEXT NOT NULL,
	lines JSONB NOT NULL,
	transfer_sale_id TEXT,
	note TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transfer_sales (
	id TEXT PRIMARY KEY,
	point_of_sale_id TEXT NOT NULL,
	transfer_id TEXT NOT NULL,
	items JSONB NOT NULL,
	total_amount BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS losses (
	id TEXT PRIMARY KEY,
	store_id TEXT NOT NULL,
	product_id TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS expense_categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS expense_categories_name_key ON expense_categories (lower(name));

CREATE TABLE IF NOT EXISTS expenses (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	amount BIGINT NOT NULL,
	category_id TEXT NOT NULL REFERENCES expense_categories (id),
	purchase_id TEXT,
	cash_movement_id TEXT,
	note TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL,
	date TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	actor_username TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS audit_logs_created_idx ON audit_logs (created_at);

CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
