package typesys

// EngineNamespace is the namespace of the built-in engine types.
const EngineNamespace = "UnityEngine"

// engineBehaviors are engine-provided components that user code commonly
// acquires or requires at runtime without a serialized reference.
var engineBehaviors = []string{
	"Transform", "RectTransform", "Rigidbody", "Rigidbody2D", "Collider",
	"BoxCollider", "SphereCollider", "CapsuleCollider", "MeshCollider",
	"Collider2D", "BoxCollider2D", "CircleCollider2D", "CharacterController",
	"Animator", "Animation", "AudioSource", "AudioListener", "Camera", "Light",
	"Renderer", "MeshRenderer", "SkinnedMeshRenderer", "SpriteRenderer",
	"LineRenderer", "TrailRenderer", "MeshFilter", "ParticleSystem", "Canvas",
	"CanvasGroup", "NavMeshAgent", "Joint", "HingeJoint", "FixedJoint",
}

var engineAssets = []string{
	"ScriptableObject", "Material", "Mesh", "Texture", "Texture2D", "Sprite",
	"AudioClip", "AnimationClip", "RuntimeAnimatorController", "Shader",
	"PhysicMaterial", "GameObject",
}

// RegisterEngineTypes adds the engine component and asset types to r so that
// references such as AddComponent<Rigidbody>() resolve without project
// sources for them.
func RegisterEngineTypes(r *Registry) {
	r.Add(&Type{Name: "Component", Namespace: EngineNamespace, Base: "Object"})
	r.Add(&Type{Name: "Behaviour", Namespace: EngineNamespace, Base: "Component"})
	r.Add(&Type{Name: "MonoBehaviour", Namespace: EngineNamespace, Base: "Behaviour", Kind: KindBehavior})
	for _, name := range engineBehaviors {
		r.Add(&Type{Name: name, Namespace: EngineNamespace, Base: "Component", Kind: KindBehavior})
	}
	for _, name := range engineAssets {
		r.Add(&Type{Name: name, Namespace: EngineNamespace, Kind: KindAsset})
	}
	r.Add(&Type{Name: "UnityEvent", Namespace: EngineNamespace + ".Events", Kind: KindDelegate})
}
