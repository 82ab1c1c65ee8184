package state

import (
	"github.com/annel0/replay-engine/internal/cache"
	"github.com/annel0/replay-engine/internal/protocol"
)

const weatherKey = "weather"

// Weather - дождь на стороне чтения: интервал и шкала силы дождя
type Weather struct {
	transient
	rain *fullState[protocol.Packet]
}

func readWeather(base transient, cur *cache.Cursor) (*Weather, error) {
	off, err := cur.VarInt()
	if err != nil {
		return nil, err
	}
	return &Weather{transient: base, rain: packetStateFrom(base.store, off, noRain)}, nil
}

func (w *Weather) Key() string {
	return weatherKey
}

func (w *Weather) Load(sink Sink) error {
	if err := w.spawn(sink); err != nil {
		return err
	}
	return w.rain.Load(sink)
}

func (w *Weather) Unload(sink Sink) error {
	if err := w.despawn(sink); err != nil {
		return err
	}
	return w.rain.Unload(sink)
}

func (w *Weather) Play(sink Sink, current, target int32) error {
	return w.rain.Play(sink, current, target)
}

// Rewind откатывает силу дождя; до первого значения дождь идёт с силой 0
func (w *Weather) Rewind(sink Sink, current, target int32) error {
	return w.rain.Rewind(sink, current, target)
}

func noRain(r *protocol.Registry) protocol.Packet {
	return protocol.NotifyClient{Reason: protocol.NotifyRainStrength}.Encode(r)
}

// WeatherBuilder собирает дождь во время анализа
type WeatherBuilder struct {
	transientBuilder
	rain Timeline[protocol.Packet]
}

func newWeatherBuilder(registry *protocol.Registry) *WeatherBuilder {
	w := &WeatherBuilder{}
	w.AddSpawnPacket(protocol.NotifyClient{Reason: protocol.NotifyBeginRain}.Encode(registry))
	w.addDespawnPacket(protocol.NotifyClient{Reason: protocol.NotifyEndRain}.Encode(registry))
	return w
}

// UpdateRainStrength записывает пакет силы дождя; пакет переходит во владение построителя
func (w *WeatherBuilder) UpdateRainStrength(time int32, p protocol.Packet) {
	w.rain.Put(time, p)
}

func (w *WeatherBuilder) build(out *Output, rec *cache.Block) error {
	if err := w.transientBuilder.build(out, rec); err != nil {
		return err
	}
	off, err := writePackets(out, &w.rain)
	if err != nil {
		return err
	}
	rec.VarInt(off)
	return nil
}

func (w *WeatherBuilder) summary() ThingSummary {
	return ThingSummary{Key: weatherKey, Span: w.span, Updates: w.rain.Len()}
}
