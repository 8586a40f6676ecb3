package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/evse-gateway/internal/protocol/evse"
	"github.com/taoyao-code/evse-gateway/internal/session"
)

// Repository 设备、遥测与充电事件历史
type Repository struct {
	Pool *pgxpool.Pool
}

// UpsertDevice 写入或更新设备身份
func (r *Repository) UpsertDevice(ctx context.Context, serial string, id session.Identity) error {
	const q = `INSERT INTO devices (serial, device_type, phases, manufacturer, model, hardware_version,
                   software_version, output_power, output_max_amps, first_seen_at, last_seen_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
               ON CONFLICT (serial) DO UPDATE SET
                   device_type=EXCLUDED.device_type, phases=EXCLUDED.phases,
                   manufacturer=EXCLUDED.manufacturer, model=EXCLUDED.model,
                   hardware_version=EXCLUDED.hardware_version, software_version=EXCLUDED.software_version,
                   output_power=EXCLUDED.output_power, output_max_amps=EXCLUDED.output_max_amps,
                   last_seen_at=NOW()`
	_, err := r.Pool.Exec(ctx, q, serial, id.Type, id.Phases, id.Manufacturer, id.Model, id.HardwareVersion,
		id.SoftwareVersion, int64(id.OutputPower), id.OutputMaxAmps)
	return err
}

// SetOnline 更新设备在线状态
func (r *Repository) SetOnline(ctx context.Context, serial string, online bool) error {
	const q = `UPDATE devices SET online=$2, last_seen_at=NOW() WHERE serial=$1`
	_, err := r.Pool.Exec(ctx, q, serial, online)
	return err
}

// InsertTelemetry 记录一条交流状态
func (r *Repository) InsertTelemetry(ctx context.Context, serial string, at time.Time, t evse.ACStatus) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	const q = `INSERT INTO telemetry (serial, recorded_at, line_id, l1_voltage, l1_amperage, total_energy,
                   current_energy, inner_temp_c, outer_temp, plug_state, current_state, charging_status,
                   error_code, payload)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err = r.Pool.Exec(ctx, q, serial, at, t.LineID, t.L1Voltage, t.L1Amperage, t.TotalEnergy,
		t.CurrentEnergy, t.InnerTempC, t.OuterTemp, t.PlugState, t.CurrentState, t.ChargingStatus,
		t.ErrorCode, payload)
	return err
}

// InsertChargeEvent 记录充电过程事件（指令 5/6/7/8），event_id 去重
func (r *Repository) InsertChargeEvent(ctx context.Context, eventID uuid.UUID, serial string, cmd uint16, at time.Time, payload []byte) error {
	const q = `INSERT INTO charge_events (event_id, serial, cmd, created_at, payload)
               VALUES ($1,$2,$3,$4,$5)
               ON CONFLICT (event_id) DO NOTHING`
	_, err := r.Pool.Exec(ctx, q, eventID, serial, int(cmd), at, payload)
	return err
}

// RecentTelemetry 最近 n 条遥测（新到旧）
func (r *Repository) RecentTelemetry(ctx context.Context, serial string, n int) ([]evse.ACStatus, error) {
	const q = `SELECT payload FROM telemetry WHERE serial=$1 ORDER BY recorded_at DESC, id DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, serial, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []evse.ACStatus
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var s evse.ACStatus
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
