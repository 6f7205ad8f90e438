// Package provider routes resource identifiers to the store and publishes
// a change on the affected collection after every successful mutation.
package provider

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/jgrocha/BluetoothChat/contract"
	"github.com/jgrocha/BluetoothChat/database"
	"github.com/jgrocha/BluetoothChat/dataerr"
	"github.com/jgrocha/BluetoothChat/logger"
	"github.com/jgrocha/BluetoothChat/resource"
)

// Store is the relational store the provider delegates to
type Store interface {
	Query(ctx context.Context, kind contract.Kind, projection []string, filter string, args []interface{}, sortOrder string) (*database.Cursor, error)
	Insert(ctx context.Context, kind contract.Kind, values database.Values) (int64, error)
	BulkInsert(ctx context.Context, kind contract.Kind, rows []database.Values) (int, error)
	Update(ctx context.Context, kind contract.Kind, values database.Values, filter string, args []interface{}) (int64, error)
	Delete(ctx context.Context, kind contract.Kind, filter string, args []interface{}) (int64, error)
}

// Publisher receives change notifications
type Publisher interface {
	Publish(id resource.Identifier) int
}

// Provider is the resource router
type Provider struct {
	store    Store
	notifier Publisher
	contract contract.Contract
}

// New creates a provider over store. notifier may be nil, in which case no
// changes are published.
func New(store Store, notifier Publisher, c contract.Contract) *Provider {
	return &Provider{store: store, notifier: notifier, contract: c}
}

// Contract returns the contract identifiers are resolved against
func (p *Provider) Contract() contract.Contract {
	return p.contract
}

// Classify resolves id to its route
func (p *Provider) Classify(id resource.Identifier) (resource.Route, error) {
	return resource.Classify(p.contract, id)
}

// ResolveKind returns the record kind id addresses
func (p *Provider) ResolveKind(id resource.Identifier) (contract.Kind, error) {
	route, err := p.Classify(id)
	if err != nil {
		return 0, err
	}
	return route.Kind(), nil
}

// GetType returns the MIME type of id: the item type for a single row, the
// directory type for everything else
func (p *Provider) GetType(id resource.Identifier) (string, error) {
	route, err := p.Classify(id)
	if err != nil {
		return "", err
	}
	if route.IsItem() {
		return p.contract.ItemType(route.Kind()), nil
	}
	return p.contract.DirType(route.Kind()), nil
}

// Query returns the rows addressed by id that also match filter. The
// cursor must be closed by the caller.
func (p *Provider) Query(ctx context.Context, id resource.Identifier, projection []string, filter string, args []interface{}, sortOrder string) (*database.Cursor, error) {
	route, err := p.Classify(id)
	if err != nil {
		return nil, err
	}
	where, whereArgs := scoped(route, filter, args)
	return p.store.Query(ctx, route.Kind(), projection, where, whereArgs, sortOrder)
}

// Insert adds a row to the collection addressed by id and returns the item
// identifier of the new row, which classifies back to exactly that row.
// Inserting through a sensor-scoped identifier fills in the sensor id.
func (p *Provider) Insert(ctx context.Context, id resource.Identifier, values database.Values) (resource.Identifier, error) {
	route, err := p.Classify(id)
	if err != nil {
		return resource.Identifier{}, err
	}
	values, err = insertValues(route, id, values)
	if err != nil {
		return resource.Identifier{}, err
	}

	rowID, err := p.store.Insert(ctx, route.Kind(), values)
	if err != nil {
		return resource.Identifier{}, err
	}

	p.publish(route.Kind())
	return resource.Item(p.contract, route.Kind(), rowID), nil
}

// BulkInsert adds rows to the collection addressed by id and returns how
// many were inserted
func (p *Provider) BulkInsert(ctx context.Context, id resource.Identifier, rows []database.Values) (int, error) {
	route, err := p.Classify(id)
	if err != nil {
		return 0, err
	}

	prepared := make([]database.Values, len(rows))
	for i, values := range rows {
		if prepared[i], err = insertValues(route, id, values); err != nil {
			return 0, err
		}
	}

	n, err := p.store.BulkInsert(ctx, route.Kind(), prepared)
	if n > 0 {
		p.publish(route.Kind())
	}
	return n, err
}

// Update changes the rows addressed by id that also match filter
func (p *Provider) Update(ctx context.Context, id resource.Identifier, values database.Values, filter string, args []interface{}) (int64, error) {
	route, err := p.Classify(id)
	if err != nil {
		return 0, err
	}
	where, whereArgs := scoped(route, filter, args)

	n, err := p.store.Update(ctx, route.Kind(), values, where, whereArgs)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.publish(route.Kind())
	}
	return n, nil
}

// Delete removes the rows addressed by id that also match filter
func (p *Provider) Delete(ctx context.Context, id resource.Identifier, filter string, args []interface{}) (int64, error) {
	route, err := p.Classify(id)
	if err != nil {
		return 0, err
	}
	where, whereArgs := scoped(route, filter, args)

	n, err := p.store.Delete(ctx, route.Kind(), where, whereArgs)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.publish(route.Kind())
	}
	return n, nil
}

// publish notifies observers of the collection, never of the single row
func (p *Provider) publish(kind contract.Kind) {
	if p.notifier == nil {
		return
	}
	coll := resource.Collection(p.contract, kind)
	n := p.notifier.Publish(coll)
	logger.Debugf("Published change on %s to %d observer(s)", coll, n)
}

// scoped ANDs the route's own restriction with the caller's filter
func scoped(route resource.Route, filter string, args []interface{}) (string, []interface{}) {
	scope, scopeArgs := route.Scope()
	switch {
	case scope == "":
		return filter, args
	case filter == "":
		return scope, scopeArgs
	}
	all := make([]interface{}, 0, len(scopeArgs)+len(args))
	all = append(all, scopeArgs...)
	all = append(all, args...)
	return fmt.Sprintf("(%s) AND (%s)", scope, filter), all
}

// insertValues checks that id can receive new rows and returns the values
// to store
func insertValues(route resource.Route, id resource.Identifier, values database.Values) (database.Values, error) {
	switch r := route.(type) {
	case resource.SensorCollection, resource.TemperatureCollection, resource.CalibrationCollection:
		return values, nil
	case resource.TemperatureForSensor:
		return withSensor(values, contract.TemperatureColumnSensorID, r.SensorID)
	case resource.CalibrationForSensor:
		return withSensor(values, contract.CalibrationColumnSensorID, r.SensorID)
	case resource.SensorItem, resource.TemperatureItem, resource.CalibrationItem, resource.TemperatureForSensorOnDate:
		return nil, dataerr.NewUnknownResource(fmt.Sprintf("cannot insert into %s", id), nil)
	default:
		return nil, dataerr.NewUnknownResource(fmt.Sprintf("unknown uri: %s", id), nil)
	}
}

func withSensor(values database.Values, column string, sensorID int64) (database.Values, error) {
	out := make(database.Values, len(values)+1)
	for k, v := range values {
		out[k] = v
	}
	if v, ok := out[column]; ok && v != nil {
		if n, err := cast.ToInt64E(v); err != nil || n != sensorID {
			return nil, dataerr.NewConstraintViolation(
				fmt.Sprintf("%s %v does not match sensor %d in identifier", column, v, sensorID), nil)
		}
	}
	out[column] = sensorID
	return out, nil
}
