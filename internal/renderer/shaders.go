package renderer

// TileShader draws one map tile per call. The fragment stage also paints the
// marker dots, the in-flight tint and the dimming overlay, all in framebuffer
// pixel space.
const TileShader = `
struct VertexInput {
    @location(0) position: vec2<f32>,
    @location(1) texCoord: vec2<f32>,
}

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) texCoord: vec2<f32>,
}

struct TileInfo {
    offset: vec2<f32>,
    scale: vec2<f32>,
}

struct FrameParams {
    overlayAlpha: f32,
    decoration: f32,
    markerCount: f32,
    markerRadius: f32,
}

struct Marker {
    pos: vec2<f32>,
    kind: f32,
    _padding: f32,
}

@group(0) @binding(0) var<uniform> tile: TileInfo;
@group(0) @binding(1) var tileSampler: sampler;
@group(0) @binding(2) var tileTexture: texture_2d<f32>;
@group(0) @binding(3) var<uniform> frame: FrameParams;
@group(0) @binding(4) var<storage, read> markers: array<Marker>;

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    let pos = in.position * tile.scale + tile.offset;
    out.position = vec4<f32>(pos, 0.0, 1.0);
    out.texCoord = in.texCoord;
    return out;
}

fn markerColor(kind: f32) -> vec3<f32> {
    if (kind > 0.5) {
        return vec3<f32>(0.16, 0.45, 0.85);
    }
    return vec3<f32>(0.86, 0.2, 0.2);
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    var color = textureSample(tileTexture, tileSampler, in.texCoord).rgb;

    // Cool tint while a camera flight runs
    let tint = vec3<f32>(0.55, 0.65, 0.85);
    color = mix(color, tint, frame.decoration);

    let count = i32(frame.markerCount);
    for (var i: i32 = 0; i < count; i = i + 1) {
        let m = markers[i];
        let d = distance(in.position.xy, m.pos);
        let r = frame.markerRadius;
        if (d <= r) {
            let border = smoothstep(r - 2.0, r, d);
            color = mix(markerColor(m.kind), vec3<f32>(1.0, 1.0, 1.0), border);
        }
    }

    // Black overlay at the presenter's opacity
    color = mix(color, vec3<f32>(0.0, 0.0, 0.0), frame.overlayAlpha);
    return vec4<f32>(color, 1.0);
}
`
